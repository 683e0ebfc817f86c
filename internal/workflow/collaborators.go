package workflow

import "context"

// TextCompleter produces text from a system and a user prompt.
type TextCompleter interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ImageGenerator turns a prompt into encoded image bytes.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// ImageStore persists generated images and reads them back by path.
type ImageStore interface {
	Save(ctx context.Context, clientID string, data []byte) (string, error)
	Load(ctx context.Context, path string) ([]byte, error)
}

// Publisher posts a captioned image. Failures are reported in the result,
// never as an error.
type Publisher interface {
	Publish(ctx context.Context, caption, filename string, image []byte) PostResult
}

// Dependencies are the collaborators injected into the standard steps.
type Dependencies struct {
	Text      TextCompleter
	Images    ImageGenerator
	Store     ImageStore
	Publisher Publisher
	Prompts   *Prompts
}
