package local

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/projecteru2/burrow/config"
	"github.com/projecteru2/burrow/storage"
	"github.com/projecteru2/burrow/types"
	"github.com/projecteru2/burrow/utils"
)

const authorizedKeysPath = "root/.ssh/authorized_keys"

var _ storage.Images = (*Local)(nil)

// Local implements storage.Images on the host filesystem. Clones use
// cp --reflink=auto, so on reflink-capable filesystems (btrfs, xfs) a clone
// is a near-instant copy-on-write duplication. Writes land in a temp file
// first and are renamed into place, so a failed clone leaves the old state.
type Local struct {
	conf *config.Config
}

// New creates a Local image store.
func New(conf *config.Config) *Local {
	return &Local{conf: conf}
}

// CloneTemplate copies a template's backing file to destPath.
func (l *Local) CloneTemplate(ctx context.Context, templateName, destPath string) error {
	src := l.conf.TemplatePath(templateName)
	if !utils.ValidFile(src) {
		return fmt.Errorf("template %s: %w", templateName, types.ErrNotFound)
	}
	return cloneFile(ctx, src, destPath)
}

// CloneToTemplate copies a VM's current image into the templates area.
func (l *Local) CloneToTemplate(ctx context.Context, imagePath, templateName string) error {
	if !utils.ValidFile(imagePath) {
		return fmt.Errorf("image %s: %w", imagePath, types.ErrNotFound)
	}
	return cloneFile(ctx, imagePath, l.conf.TemplatePath(templateName))
}

// InjectKey installs publicKey as the guest root's authorized key.
func (l *Local) InjectKey(ctx context.Context, imagePath, publicKey string) error {
	if strings.TrimSpace(publicKey) == "" {
		return nil
	}
	return withMounted(ctx, imagePath, func(mnt string) error {
		keyFile := filepath.Join(mnt, authorizedKeysPath)
		if err := os.MkdirAll(filepath.Dir(keyFile), 0o700); err != nil {
			return fmt.Errorf("create .ssh dir: %w", err)
		}
		return os.WriteFile(keyFile, []byte(strings.TrimSpace(publicKey)+"\n"), 0o600)
	})
}

// ClearInjectedKey strips injected credentials from a template image.
func (l *Local) ClearInjectedKey(ctx context.Context, templateName string) error {
	return withMounted(ctx, l.conf.TemplatePath(templateName), func(mnt string) error {
		err := os.Remove(filepath.Join(mnt, authorizedKeysPath))
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	})
}

// DeleteImage removes a private disk image. Missing files are not an error.
func (l *Local) DeleteImage(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove image %s: %w", path, err)
	}
	return nil
}

// cloneFile copies src to dst via a temp file + rename in dst's directory.
func cloneFile(ctx context.Context, src, dst string) error {
	tmp := dst + ".tmp"
	out, err := exec.CommandContext(ctx, //nolint:gosec
		"cp", "--reflink=auto", "--sparse=always", src, tmp,
	).CombinedOutput()
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("clone %s: %s: %w", src, strings.TrimSpace(string(out)), err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("finalize clone %s: %w", dst, err)
	}
	return nil
}

// withMounted loop-mounts imagePath on a temp dir, runs fn, and always
// unmounts before returning.
func withMounted(ctx context.Context, imagePath string, fn func(mnt string) error) error {
	mnt, err := os.MkdirTemp("", "burrow-mnt-*")
	if err != nil {
		return fmt.Errorf("create mountpoint: %w", err)
	}
	defer os.Remove(mnt) //nolint:errcheck

	if out, err := exec.CommandContext(ctx, //nolint:gosec
		"mount", "-o", "loop", imagePath, mnt,
	).CombinedOutput(); err != nil {
		return fmt.Errorf("mount %s: %s: %w", imagePath, strings.TrimSpace(string(out)), err)
	}
	defer func() {
		// Unmount must not inherit a cancelled ctx — the image would stay busy.
		_ = exec.Command("umount", mnt).Run() //nolint:gosec
	}()

	return fn(mnt)
}
