package config

import (
	"encoding/json"
	"fmt"

	"github.com/danmuck/gridmesh/internal/simulation"
)

// EncodeStudyJSON validates a study and renders it as the JSON blob
// carried inside submit frames.
func EncodeStudyJSON(study simulation.Study) ([]byte, error) {
	study = study.WithDefaults()
	if err := simulation.ValidateStudy(study); err != nil {
		return nil, err
	}
	data, err := json.Marshal(study)
	if err != nil {
		return nil, fmt.Errorf("study encode failed: %w", err)
	}
	return data, nil
}

// ParseStudyJSON decodes a submitted study blob back into the model,
// applying defaults and validating before anything runs it.
func ParseStudyJSON(data []byte) (simulation.Study, error) {
	var study simulation.Study
	if err := json.Unmarshal(data, &study); err != nil {
		return simulation.Study{}, fmt.Errorf("study parse failed: %w", err)
	}
	study = study.WithDefaults()
	if err := simulation.ValidateStudy(study); err != nil {
		return simulation.Study{}, err
	}
	return study, nil
}
