package perception

import (
	"encoding/json"
	"fmt"

	"github.com/teslashibe/go-rover/pkg/decision"
)

// detectionArray mirrors vision_msgs/Detection2DArray. Only the classification
// results are decoded; boxes and poses are ignored.
type detectionArray struct {
	Detections []struct {
		Results []hypothesis `json:"results"`
	} `json:"detections"`
}

// hypothesis accepts both vision_msgs layouts: the older flat
// ObjectHypothesisWithPose{id, score} and the newer nested
// {hypothesis: {class_id, score}}.
type hypothesis struct {
	ID         *string  `json:"id"`
	Score      *float64 `json:"score"`
	Hypothesis *struct {
		ClassID *string  `json:"class_id"`
		Score   *float64 `json:"score"`
	} `json:"hypothesis"`
}

func (h hypothesis) detection() (decision.Detection, bool) {
	label, score := h.ID, h.Score
	if h.Hypothesis != nil {
		if h.Hypothesis.ClassID != nil {
			label = h.Hypothesis.ClassID
		}
		if h.Hypothesis.Score != nil {
			score = h.Hypothesis.Score
		}
	}
	if label == nil || *label == "" || score == nil {
		return decision.Detection{}, false
	}
	return decision.Detection{Label: *label, Score: *score}, true
}

// DecodeDetectionArray flattens a Detection2DArray into an ordered batch.
// Results missing a label or a score are skipped and counted.
func DecodeDetectionArray(data []byte) (batch []decision.Detection, skipped int, err error) {
	var arr detectionArray
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, 0, fmt.Errorf("perception: decode detection array: %w", err)
	}

	for _, det := range arr.Detections {
		for _, r := range det.Results {
			d, ok := r.detection()
			if !ok {
				skipped++
				continue
			}
			batch = append(batch, d)
		}
	}
	return batch, skipped, nil
}

// EncodeDetectionArray builds a Detection2DArray payload with one result per
// detection, in the nested hypothesis layout.
func EncodeDetectionArray(batch []decision.Detection) ([]byte, error) {
	type hyp struct {
		ClassID string  `json:"class_id"`
		Score   float64 `json:"score"`
	}
	type result struct {
		Hypothesis hyp `json:"hypothesis"`
	}
	type det struct {
		Results []result `json:"results"`
	}

	out := struct {
		Detections []det `json:"detections"`
	}{Detections: make([]det, 0, len(batch))}

	for _, d := range batch {
		out.Detections = append(out.Detections, det{
			Results: []result{{Hypothesis: hyp{ClassID: d.Label, Score: d.Score}}},
		})
	}
	return json.Marshal(out)
}
