package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DruboPaul/web-surveyscriber/constants"
	"github.com/DruboPaul/web-surveyscriber/internal/entity"
)

type fakeEngine struct {
	text string
	err  error
}

func (f *fakeEngine) Name() constants.OCREngineName { return constants.EngineCustom }
func (f *fakeEngine) GetText(context.Context, string) (string, error) {
	return f.text, f.err
}

type fakeProvider struct {
	textCalls   int
	visionCalls int
	lastText    string
	out         map[string]any
	err         error
}

func (f *fakeProvider) Name() constants.AIProviderName { return constants.ProviderOpenAI }

func (f *fakeProvider) ExtractText(_ context.Context, text string, _ entity.Schema) (map[string]any, *entity.TokenUsage, error) {
	f.textCalls++
	f.lastText = text
	return f.out, &entity.TokenUsage{TotalTokens: 10, Model: "gpt-4o-mini"}, f.err
}

func (f *fakeProvider) ExtractImage(context.Context, string, entity.Schema) (map[string]any, *entity.TokenUsage, error) {
	f.visionCalls++
	return f.out, &entity.TokenUsage{TotalTokens: 25, Model: "gpt-4o"}, f.err
}

func TestExtractOne(t *testing.T) {
	schema := entity.SchemaFromFields([]string{"name", "age"})
	image := entity.NewImageRef("/tmp/batch/form_01.jpg")

	t.Run("latin ocr text goes to text extraction", func(t *testing.T) {
		p := &fakeProvider{out: map[string]any{"name": "Rahim", "age": "32", "invented": "x"}}
		step := NewStep(0, nil)
		res, err := step.ExtractOne(context.Background(), image, schema,
			&fakeEngine{text: "Name: Rahim Uddin\nAge: thirty two years old"}, p, true)
		require.NoError(t, err)
		assert.Equal(t, 1, p.textCalls)
		assert.Equal(t, 0, p.visionCalls)
		assert.Equal(t, constants.OCRStatusSuccess, res.OCRStatus)
		assert.False(t, res.UsedVision)
		assert.Equal(t, "Rahim", res.Fields["name"])
		assert.NotContains(t, res.Fields, "invented")
	})

	t.Run("non-latin schema hint skips ocr entirely", func(t *testing.T) {
		p := &fakeProvider{out: map[string]any{"name": "x"}}
		step := NewStep(0, nil)
		res, err := step.ExtractOne(context.Background(), image, schema,
			&fakeEngine{text: "would not be called"}, p, false)
		require.NoError(t, err)
		assert.Equal(t, constants.OCRStatusSkipped, res.OCRStatus)
		assert.True(t, res.UsedVision)
		assert.Equal(t, 1, p.visionCalls)
	})

	t.Run("nil engine skips ocr", func(t *testing.T) {
		p := &fakeProvider{out: map[string]any{}}
		step := NewStep(0, nil)
		res, err := step.ExtractOne(context.Background(), image, schema, nil, p, true)
		require.NoError(t, err)
		assert.Equal(t, constants.OCRStatusSkipped, res.OCRStatus)
		assert.True(t, res.UsedVision)
	})

	t.Run("ocr failure downgrades to vision with warning", func(t *testing.T) {
		p := &fakeProvider{out: map[string]any{"name": "y"}}
		step := NewStep(0, nil)
		res, err := step.ExtractOne(context.Background(), image, schema,
			&fakeEngine{err: errors.New("azure status 503: service unavailable")}, p, true)
		require.NoError(t, err)
		assert.Equal(t, constants.OCRStatusFailed, res.OCRStatus)
		assert.Contains(t, res.OCRWarning, "azure status 503")
		assert.True(t, res.UsedVision)
		assert.Equal(t, 1, p.visionCalls)
	})

	t.Run("ocr warning is truncated", func(t *testing.T) {
		long := make([]byte, 500)
		for i := range long {
			long[i] = 'e'
		}
		p := &fakeProvider{out: map[string]any{}}
		step := NewStep(0, nil)
		res, err := step.ExtractOne(context.Background(), image, schema,
			&fakeEngine{err: errors.New(string(long))}, p, true)
		require.NoError(t, err)
		assert.Len(t, res.OCRWarning, maxWarningLen)
	})

	t.Run("empty ocr text falls back to vision", func(t *testing.T) {
		p := &fakeProvider{out: map[string]any{}}
		step := NewStep(0, nil)
		res, err := step.ExtractOne(context.Background(), image, schema,
			&fakeEngine{text: ""}, p, true)
		require.NoError(t, err)
		assert.Equal(t, constants.OCRStatusEmpty, res.OCRStatus)
		assert.True(t, res.UsedVision)
	})

	t.Run("whitespace-only ocr text counts as empty", func(t *testing.T) {
		p := &fakeProvider{out: map[string]any{}}
		step := NewStep(0, nil)
		res, err := step.ExtractOne(context.Background(), image, schema,
			&fakeEngine{text: " \n\t  \n"}, p, true)
		require.NoError(t, err)
		assert.Equal(t, constants.OCRStatusEmpty, res.OCRStatus)
		assert.True(t, res.UsedVision)
		assert.Equal(t, 0, p.textCalls)
	})

	t.Run("non-latin ocr text falls back to vision, ocr still success", func(t *testing.T) {
		p := &fakeProvider{out: map[string]any{}}
		step := NewStep(0, nil)
		res, err := step.ExtractOne(context.Background(), image, schema,
			&fakeEngine{text: "নাম: রহিম উদ্দিন বয়স: বত্রিশ"}, p, true)
		require.NoError(t, err)
		assert.Equal(t, constants.OCRStatusSuccess, res.OCRStatus)
		assert.True(t, res.UsedVision)
		assert.Equal(t, 0, p.textCalls)
	})

	t.Run("extraction failure propagates", func(t *testing.T) {
		p := &fakeProvider{err: errors.New("openai status 429: rate limited")}
		step := NewStep(0, nil)
		_, err := step.ExtractOne(context.Background(), image, schema, nil, p, true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("missing schema keys become nil", func(t *testing.T) {
		p := &fakeProvider{out: map[string]any{"name": "only-name"}}
		step := NewStep(0, nil)
		res, err := step.ExtractOne(context.Background(), image, schema, nil, p, true)
		require.NoError(t, err)
		v, ok := res.Fields["age"]
		assert.True(t, ok)
		assert.Nil(t, v)
	})
}
