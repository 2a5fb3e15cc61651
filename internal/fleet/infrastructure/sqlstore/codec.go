package sqlstore

import "encoding/json"

func marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func unmarshal(data []byte, dst any) error {
	return json.Unmarshal(data, dst)
}
