package storage

import "context"

// Initer is optionally implemented by T to initialize zero-value fields
// (e.g., nil maps) after deserialization or when the backing store is empty.
type Initer interface {
	Init()
}

// Store provides locked read/modify/write access to a data store.
// T is the top-level structure managed by the store.
type Store[T any] interface {
	// With loads the data under lock and passes it to fn.
	// If *T implements Initer, Init() is called before fn.
	// The lock is held for the duration of fn.
	With(ctx context.Context, fn func(*T) error) error
	// Update performs a read-modify-write under lock.
	// If fn returns nil the data is persisted.
	Update(ctx context.Context, fn func(*T) error) error
}

// Images is the disk-image collaborator consumed by the orchestrator.
// Every operation must leave either the old or the fully-new state on disk,
// never a half-written image.
type Images interface {
	// CloneTemplate copies a template's backing file into a new private
	// image at destPath (copy-on-write where the filesystem supports it).
	CloneTemplate(ctx context.Context, templateName, destPath string) error
	// InjectKey installs the caller's public key into the image so the guest
	// accepts their logins.
	InjectKey(ctx context.Context, imagePath, publicKey string) error
	// CloneToTemplate copies a VM's current image into the templates area
	// under the given name.
	CloneToTemplate(ctx context.Context, imagePath, templateName string) error
	// ClearInjectedKey strips injected credentials from a template image so
	// it is reusable without leaking the source VM's key.
	ClearInjectedKey(ctx context.Context, templateName string) error
	// DeleteImage removes a private disk image.
	DeleteImage(ctx context.Context, path string) error
}
