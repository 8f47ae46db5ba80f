package stop

import (
	"context"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// Policy reports whether a model accepts the stop parameter.
type Policy interface {
	SupportsStop(model string) bool
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(model string) bool

func (f PolicyFunc) SupportsStop(model string) bool {
	return f(model)
}

var (
	// NeverSendStop withholds stop words for every model.
	NeverSendStop Policy = PolicyFunc(func(string) bool { return false })
	// AlwaysSendStop forwards stop words to every model.
	AlwaysSendStop Policy = PolicyFunc(func(string) bool { return true })
)

// SendStopExcept forwards stop words except to the listed models. A listed
// name matches a model ID equal to it or starting with it followed by "-",
// ignoring case and any "provider/" prefix.
func SendStopExcept(models ...string) Policy {
	excluded := make([]string, len(models))
	for i, m := range models {
		excluded[i] = strings.ToLower(m)
	}
	return PolicyFunc(func(model string) bool {
		name := strings.ToLower(model)
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		for _, ex := range excluded {
			if name == ex || strings.HasPrefix(name, ex+"-") {
				return false
			}
		}
		return true
	})
}

// ParsePolicy maps "never", "always" or "except:model1,model2" to a Policy.
func ParsePolicy(s string) (Policy, bool) {
	switch s = strings.TrimSpace(s); {
	case s == "" || s == "never":
		return NeverSendStop, true
	case s == "always":
		return AlwaysSendStop, true
	case strings.HasPrefix(s, "except:"):
		return SendStopExcept(strings.Split(strings.TrimPrefix(s, "except:"), ",")...), true
	}
	return nil, false
}

// TruncateAtStop cuts text at the earliest occurrence of any stop sequence.
func TruncateAtStop(text string, stops []string) string {
	cut := len(text)
	for _, s := range stops {
		if s == "" {
			continue
		}
		if i := strings.Index(text, s); i >= 0 && i < cut {
			cut = i
		}
	}
	return text[:cut]
}

// StreamFilter forwards streamed chunks until a stop sequence shows up.
// Text that could be the start of a stop sequence is held back until the
// next chunk decides it.
type StreamFilter struct {
	stops   []string
	next    func(ctx context.Context, chunk []byte) error
	text    strings.Builder
	emitted int
	done    bool
}

// NewStreamFilter wraps next. Call Flush once the stream has ended.
func NewStreamFilter(stops []string, next func(ctx context.Context, chunk []byte) error) *StreamFilter {
	return &StreamFilter{stops: stops, next: next}
}

// Write is a langchaingo streaming function.
func (f *StreamFilter) Write(ctx context.Context, chunk []byte) error {
	if f.done {
		return nil
	}
	f.text.Write(chunk)
	text := f.text.String()

	if cut := len(TruncateAtStop(text, f.stops)); cut < len(text) {
		f.done = true
		return f.emit(ctx, text, cut)
	}
	return f.emit(ctx, text, len(text)-f.heldBack(text))
}

// Flush forwards whatever was held back.
func (f *StreamFilter) Flush(ctx context.Context) error {
	if f.done {
		return nil
	}
	f.done = true
	return f.emit(ctx, f.text.String(), f.text.Len())
}

// Stopped reports whether a stop sequence was seen.
func (f *StreamFilter) Stopped() bool {
	return f.done && len(TruncateAtStop(f.text.String(), f.stops)) < f.text.Len()
}

func (f *StreamFilter) emit(ctx context.Context, text string, upTo int) error {
	if upTo <= f.emitted {
		return nil
	}
	chunk := text[f.emitted:upTo]
	f.emitted = upTo
	return f.next(ctx, []byte(chunk))
}

func (f *StreamFilter) heldBack(text string) int {
	hold := 0
	for _, s := range f.stops {
		for k := min(len(s)-1, len(text)); k > hold; k-- {
			if strings.HasSuffix(text, s[:k]) {
				hold = k
				break
			}
		}
	}
	return hold
}

// Guard wraps a model so stop words follow policy. modelName is used when
// the call does not name a model.
func Guard(model llms.Model, policy Policy, modelName string) llms.Model {
	if policy == nil {
		policy = NeverSendStop
	}
	return &guarded{model: model, policy: policy, modelName: modelName}
}

type guarded struct {
	model     llms.Model
	policy    Policy
	modelName string
}

var _ llms.Model = (*guarded)(nil)

func (g *guarded) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, g, prompt, options...)
}

func (g *guarded) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}
	name := opts.Model
	if name == "" {
		name = g.modelName
	}
	if len(opts.StopWords) == 0 || g.policy.SupportsStop(name) {
		return g.model.GenerateContent(ctx, messages, options...)
	}

	stops := opts.StopWords
	options = append(options[:len(options):len(options)], llms.WithStopWords(nil))
	var filter *StreamFilter
	if opts.StreamingFunc != nil {
		filter = NewStreamFilter(stops, opts.StreamingFunc)
		options = append(options, llms.WithStreamingFunc(filter.Write))
	}

	resp, err := g.model.GenerateContent(ctx, messages, options...)
	if err != nil {
		return nil, err
	}
	if filter != nil {
		if err := filter.Flush(ctx); err != nil {
			return nil, err
		}
	}
	for _, choice := range resp.Choices {
		if truncated := TruncateAtStop(choice.Content, stops); len(truncated) < len(choice.Content) {
			choice.Content = truncated
			choice.StopReason = "stop"
		}
	}
	return resp, nil
}
