package lock

import "encoding/json"

func encodeRecord(r record) ([]byte, error) {
	return json.Marshal(r)
}

func decodeRecord(raw []byte) (record, error) {
	var r record
	err := json.Unmarshal(raw, &r)
	return r, err
}
