package storage

import (
	"encoding/json"

	"fieldnet/internal/model"
)

func EncodeRun(run model.RunRecord) ([]byte, error) {
	return json.Marshal(run)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeRows(rows []model.Row) ([]byte, error) {
	return json.Marshal(rows)
}

func DecodeRows(data []byte) ([]model.Row, error) {
	var rows []model.Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
