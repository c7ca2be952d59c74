package template

import (
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/projecteru2/burrow/config"
	"github.com/projecteru2/burrow/types"
	"github.com/projecteru2/burrow/utils"
)

// Library answers template queries against the templates directory.
type Library struct {
	conf *config.Config
}

// New creates a Library over the configured templates directory.
func New(conf *config.Config) *Library {
	return &Library{conf: conf}
}

// Exists reports whether a template's backing file is present.
func (l *Library) Exists(name string) bool {
	if types.ValidateName(name) != nil {
		return false
	}
	return utils.ValidFile(l.conf.TemplatePath(name))
}

// IsProtected reports whether name is in the fixed protected set.
func (l *Library) IsProtected(name string) bool {
	return slices.Contains(l.conf.ProtectedTemplates, name)
}

// Stat returns a template's metadata derived from its backing file.
func (l *Library) Stat(name string) (types.TemplateInfo, error) {
	if err := types.ValidateName(name); err != nil {
		return types.TemplateInfo{}, err
	}
	info, err := os.Stat(l.conf.TemplatePath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return types.TemplateInfo{}, fmt.Errorf("template %s: %w", name, types.ErrNotFound)
		}
		return types.TemplateInfo{}, fmt.Errorf("stat template %s: %w", name, err)
	}
	return types.TemplateInfo{
		Name:       name,
		Size:       info.Size(),
		ModifiedAt: info.ModTime(),
	}, nil
}

// List returns metadata for every template, sorted by name.
func (l *Library) List() ([]types.TemplateInfo, error) {
	names := utils.ScanFileStems(l.conf.TemplatesDir(), ".ext4")
	sort.Strings(names)
	infos := make([]types.TemplateInfo, 0, len(names))
	for _, name := range names {
		info, err := l.Stat(name)
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}
