package conversation

import (
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/ragdex/internal/domain/turn"
)

// turnRow is the JSON wire form of a log entry. The struct carries exactly
// two fields in declaration order, so marshaling the same turn always yields
// the same bytes and LREM can match serialized turns verbatim.
type turnRow struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func marshalTurn(t turn.Turn) (string, error) {
	data, err := json.Marshal(turnRow{Role: string(t.Role()), Content: t.Content()})
	if err != nil {
		return "", fmt.Errorf("marshal turn: %w", err)
	}
	return string(data), nil
}

func unmarshalTurns(rows []string) ([]turn.Turn, error) {
	turns := make([]turn.Turn, 0, len(rows))
	for i, row := range rows {
		var tr turnRow
		if err := json.Unmarshal([]byte(row), &tr); err != nil {
			return nil, fmt.Errorf("parse turn at offset %d: %w", i, err)
		}
		turns = append(turns, turn.Reconstruct(turn.Role(tr.Role), tr.Content))
	}
	return turns, nil
}
