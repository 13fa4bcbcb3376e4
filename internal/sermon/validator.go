package sermon

import (
	"context"
	"fmt"

	"github.com/pulpit-ai/pulpit/internal/core"
)

// ContentValidation is the model's verdict on whether a document is a sermon.
type ContentValidation struct {
	IsSermon   bool    `json:"isSermon"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Validator runs the "is this actually a sermon" check before an upload
// enters the pipeline.
type Validator struct {
	llm core.LLMProvider
}

func NewValidator(llm core.LLMProvider) *Validator {
	return &Validator{llm: llm}
}

const validatorSystemPrompt = `You are a sermon content validator. Analyze the given text and determine if it is a sermon.
You MUST respond with a JSON object in this exact format:
{
  "isSermon": boolean,
  "confidence": number between 0 and 1,
  "reason": string explaining your decision
}

Consider:
- Religious/spiritual content
- Preaching style and tone
- Biblical references
- Sermon structure (introduction, body, conclusion)
- Call to action or application
- Theological concepts`

// Validate inspects the opening of the text. A negative verdict is not an
// error here; the caller decides whether to reject.
func (v *Validator) Validate(ctx context.Context, text string) (*ContentValidation, error) {
	sample := text
	if len(sample) > 1000 {
		sample = sample[:1000] + "..."
	}

	var verdict ContentValidation
	err := v.llm.GenerateJSON(ctx, validatorSystemPrompt,
		"Analyze this text and determine if it's a sermon: "+sample, &verdict)
	if err != nil {
		return nil, fmt.Errorf("sermon validation: %w", err)
	}
	return &verdict, nil
}
