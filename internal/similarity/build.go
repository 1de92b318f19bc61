package similarity

import (
	"encoding/json"
	"fmt"
	"io"
)

// A BuildOutput is the JSON document written by the offline similarity
// build. Scores holds one row per id.
type BuildOutput struct {
	BuildVersion uint64      `json:"build_version"`
	IDs          []string    `json:"ids"`
	Scores       [][]float32 `json:"scores"`
}

// ReadBuildOutput parses a build document and flattens it into an
// [Artifact]. The matrix itself is validated by [Encode].
func ReadBuildOutput(r io.Reader) (Artifact, error) {
	const op = "similarity.ReadBuildOutput"

	var out BuildOutput
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return Artifact{}, fmt.Errorf("%s: %w", op, err)
	}

	n := len(out.IDs)
	if len(out.Scores) != n {
		return Artifact{}, fmt.Errorf("%s: %d score rows for %d ids",
			op, len(out.Scores), n)
	}

	scores := make([]float32, 0, n*n)
	for i, row := range out.Scores {
		if len(row) != n {
			return Artifact{}, fmt.Errorf("%s: row %d has %d scores, want %d",
				op, i, len(row), n)
		}
		scores = append(scores, row...)
	}

	return Artifact{
		BuildVersion: out.BuildVersion,
		IDs:          out.IDs,
		Scores:       scores,
	}, nil
}
