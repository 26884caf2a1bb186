package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedPrediction marks responses the model produced but that do not
// decode into a usable prediction. Retrying is pointless; callers surface it.
var ErrMalformedPrediction = errors.New("malformed prediction payload")

// PredictionInput describes one prediction request.
type PredictionInput struct {
	Symptoms []string
	Age      int
	Gender   string
}

// Condition is one candidate condition in a prediction.
type Condition struct {
	Name        string `json:"name"`
	Likelihood  string `json:"likelihood"`
	Description string `json:"description"`
}

// Prediction is the structured result of a prediction request.
type Prediction struct {
	Conditions []Condition `json:"conditions"`
	Advice     string      `json:"advice"`
	Disclaimer string      `json:"disclaimer"`
	Raw        string      `json:"-"`
}

var predictionSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"conditions": map[string]any{
			"type": "ARRAY",
			"items": map[string]any{
				"type": "OBJECT",
				"properties": map[string]any{
					"name":        map[string]any{"type": "STRING"},
					"likelihood":  map[string]any{"type": "STRING"},
					"description": map[string]any{"type": "STRING"},
				},
				"required": []string{"name", "likelihood"},
			},
		},
		"advice":     map[string]any{"type": "STRING"},
		"disclaimer": map[string]any{"type": "STRING"},
	},
	"required": []string{"conditions", "advice"},
}

func (in PredictionInput) validate() error {
	if len(in.Symptoms) == 0 {
		return errors.New("llm predict: at least one symptom required")
	}
	for _, s := range in.Symptoms {
		if strings.TrimSpace(s) == "" {
			return errors.New("llm predict: blank symptom")
		}
	}
	if in.Age <= 0 || in.Age > 130 {
		return fmt.Errorf("llm predict: age %d out of range", in.Age)
	}
	return nil
}

// Predict asks the prediction model for plausible conditions.
func (c *Client) Predict(ctx context.Context, input PredictionInput) (Prediction, error) {
	var empty Prediction
	if err := input.validate(); err != nil {
		return empty, err
	}

	payload := generateRequest{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: buildPredictPrompt(input)}}},
		},
		SystemInstruction: systemInstruction(predictSystemPrompt),
		GenerationConfig: generationConfig{
			Temperature:      0,
			ResponseMIMEType: "application/json",
			ResponseSchema:   predictionSchema,
		},
	}

	raw, err := c.generate(ctx, c.cfg.PredictModel, payload, "llm predict")
	if err != nil {
		return empty, err
	}

	var parsed Prediction
	if err := DecodeModelJSON(raw, &parsed); err != nil {
		return empty, fmt.Errorf("%w: %v", ErrMalformedPrediction, err)
	}

	conditions := parsed.Conditions[:0]
	for _, cond := range parsed.Conditions {
		cond.Name = strings.TrimSpace(cond.Name)
		if cond.Name == "" {
			continue
		}
		cond.Likelihood = strings.ToLower(strings.TrimSpace(cond.Likelihood))
		cond.Description = strings.TrimSpace(cond.Description)
		conditions = append(conditions, cond)
	}
	parsed.Conditions = conditions
	if len(parsed.Conditions) == 0 {
		return empty, fmt.Errorf("%w: no usable conditions", ErrMalformedPrediction)
	}
	parsed.Advice = strings.TrimSpace(parsed.Advice)
	parsed.Disclaimer = strings.TrimSpace(parsed.Disclaimer)
	if parsed.Disclaimer == "" {
		parsed.Disclaimer = DefaultDisclaimer
	}
	parsed.Raw = raw
	return parsed, nil
}

// DefaultDisclaimer is attached to predictions when the model omits one.
const DefaultDisclaimer = "This is not a medical diagnosis. Consult a healthcare professional about your symptoms."
