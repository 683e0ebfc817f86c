package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// Step names. Pause and End are reserved terminals, not steps.
const (
	StepCreateBranding    = "create_branding"
	StepCreateVisuals     = "create_visuals"
	StepGenerateImage     = "generate_image"
	StepCheckRequirements = "check_requirements"
	StepGeneratePost      = "generate_post"
	StepPostToFacebook    = "post_to_facebook"

	Pause = "pause"
	End   = "end"
)

// ResumeAt is the entry used when a paused run receives its missing details.
const ResumeAt = StepGeneratePost

var (
	// ErrMissingDetails is returned by post generation when the router's
	// guarantee was bypassed.
	ErrMissingDetails = errors.New("workflow: property details missing")
	// ErrNoCollaborator is returned when a step runs without its dependency.
	ErrNoCollaborator = errors.New("workflow: collaborator not configured")
)

// Step is one unit of work in the pipeline.
type Step interface {
	Name() string
	Run(ctx context.Context, s State) (Patch, error)
}

// StepFunc adapts a function to Step.
type StepFunc struct {
	StepName string
	Fn       func(ctx context.Context, s State) (Patch, error)
}

func (f StepFunc) Name() string { return f.StepName }

func (f StepFunc) Run(ctx context.Context, s State) (Patch, error) { return f.Fn(ctx, s) }

// NewSteps returns the six standard steps bound to deps.
func NewSteps(deps Dependencies) []Step {
	prompts := deps.Prompts
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	return []Step{
		&brandingStep{text: deps.Text, prompt: prompts.Branding},
		&visualsStep{text: deps.Text, prompt: prompts.Visuals},
		&imageStep{images: deps.Images, store: deps.Store},
		requirementsStep{},
		&postStep{text: deps.Text, prompt: prompts.Post},
		&publishStep{store: deps.Store, publisher: deps.Publisher},
	}
}

type brandingStep struct {
	text   TextCompleter
	prompt PromptPair
}

func (*brandingStep) Name() string { return StepCreateBranding }

func (b *brandingStep) Run(ctx context.Context, s State) (Patch, error) {
	user, err := b.prompt.Render(struct{ UserInput string }{deref(s.UserInput)})
	if err != nil {
		return Patch{}, err
	}
	out, err := complete(ctx, b.text, b.prompt.System, user)
	if err != nil {
		return Patch{}, err
	}
	return Patch{BrandSuggestions: &out}, nil
}

type visualsStep struct {
	text   TextCompleter
	prompt PromptPair
}

func (*visualsStep) Name() string { return StepCreateVisuals }

func (v *visualsStep) Run(ctx context.Context, s State) (Patch, error) {
	user, err := v.prompt.Render(struct{ BrandSuggestions string }{deref(s.BrandSuggestions)})
	if err != nil {
		return Patch{}, err
	}
	out, err := complete(ctx, v.text, v.prompt.System, user)
	if err != nil {
		return Patch{}, err
	}
	return Patch{VisualPrompts: &out}, nil
}

type imageStep struct {
	images ImageGenerator
	store  ImageStore
}

func (*imageStep) Name() string { return StepGenerateImage }

func (g *imageStep) Run(ctx context.Context, s State) (Patch, error) {
	if g.images == nil || g.store == nil {
		return Patch{}, fmt.Errorf("generate image: %w", ErrNoCollaborator)
	}
	data, err := g.images.Generate(ctx, deref(s.VisualPrompts))
	if err != nil {
		return Patch{}, fmt.Errorf("generate image: %w", err)
	}
	path, err := g.store.Save(ctx, s.ClientID, data)
	if err != nil {
		return Patch{}, fmt.Errorf("save image: %w", err)
	}
	slog.Info("Image generated", "client_id", s.ClientID, "path", path, "bytes", len(data))
	return Patch{ImagePath: &path}, nil
}

type requirementsStep struct{}

func (requirementsStep) Name() string { return StepCheckRequirements }

func (requirementsStep) Run(_ context.Context, s State) (Patch, error) {
	missing := MissingFields(s)
	return Patch{MissingInfo: &missing}, nil
}

type postStep struct {
	text   TextCompleter
	prompt PromptPair
}

func (*postStep) Name() string { return StepGeneratePost }

func (p *postStep) Run(ctx context.Context, s State) (Patch, error) {
	if s.Location == nil || s.Price == nil || s.Bedrooms == nil {
		return Patch{}, ErrMissingDetails
	}
	user, err := p.prompt.Render(struct {
		Location, Price, Bedrooms, Features, BrandSuggestions string
	}{
		Location:         *s.Location,
		Price:            *s.Price,
		Bedrooms:         *s.Bedrooms,
		Features:         strings.Join(s.Features, ", "),
		BrandSuggestions: deref(s.BrandSuggestions),
	})
	if err != nil {
		return Patch{}, err
	}
	out, err := complete(ctx, p.text, p.prompt.System, user)
	if err != nil {
		return Patch{}, err
	}
	return Patch{BasePost: &out}, nil
}

type publishStep struct {
	store     ImageStore
	publisher Publisher
}

func (*publishStep) Name() string { return StepPostToFacebook }

func (p *publishStep) Run(ctx context.Context, s State) (Patch, error) {
	path := deref(s.ImagePath)
	if path == "" || p.store == nil {
		return resultPatch(imageMissing(path)), nil
	}
	data, err := p.store.Load(ctx, path)
	if err != nil {
		slog.Warn("Image unreadable, skipping publish", "client_id", s.ClientID, "path", path, "error", err)
		return resultPatch(imageMissing(path)), nil
	}
	if p.publisher == nil {
		return Patch{}, fmt.Errorf("publish: %w", ErrNoCollaborator)
	}
	res := p.publisher.Publish(ctx, deref(s.BasePost), filepath.Base(path), data)
	slog.Info("Publish finished", "client_id", s.ClientID, "status", res.Status, "post_id", res.PostID)
	return resultPatch(res), nil
}

func imageMissing(path string) PostResult {
	return PostResult{Status: PostStatusError, Message: "Image not found at path: " + path}
}

func resultPatch(r PostResult) Patch {
	return Patch{PostResult: &r}
}

func complete(ctx context.Context, text TextCompleter, system, user string) (string, error) {
	if text == nil {
		return "", ErrNoCollaborator
	}
	out, err := text.Complete(ctx, system, user)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
