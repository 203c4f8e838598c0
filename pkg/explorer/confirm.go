package explorer

import "context"

// Prompt describes a destructive action awaiting confirmation.
type Prompt struct {
	Action  string // "delete", "close" or "download"
	Target  string // file or folder path
	Message string
}

// Confirmer blocks until the user accepts or declines a prompt.
type Confirmer interface {
	Confirm(ctx context.Context, p Prompt) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, p Prompt) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, p Prompt) (bool, error) {
	return f(ctx, p)
}

// AlwaysConfirm accepts every prompt.
var AlwaysConfirm Confirmer = ConfirmFunc(func(context.Context, Prompt) (bool, error) {
	return true, nil
})

// NeverConfirm declines every prompt. It is the default, so destructive
// actions need an explicit Confirmer.
var NeverConfirm Confirmer = ConfirmFunc(func(context.Context, Prompt) (bool, error) {
	return false, nil
})
