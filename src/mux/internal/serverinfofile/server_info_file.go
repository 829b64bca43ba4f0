package serverinfofile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rubydx/sorbet-mux/src/mux/internal/fs"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const _configKeyInfoFile = "serverInfoFilePath"

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// ServerInfoFile is an interface to manage contents of a single server info file.
// It stores connection info for reference by editors and other tools: the
// daemon's address and pid at launch, plus one field per live Sorbet session.
type ServerInfoFile interface {
	UpdateField(key string, value string) error
	DeleteField(key string) error
}

type module struct {
	infofile     string
	fs           fs.MuxFS
	logger       *zap.SugaredLogger
	fileContents map[string]string
	mu           sync.Mutex
}

// Params define values to be used by ServerInfoFile.
type Params struct {
	fx.In

	Config    config.Provider
	FS        fs.MuxFS
	Lifecycle fx.Lifecycle
	Logger    *zap.SugaredLogger
}

// New creates a new ServerInfoFile which manages contents of a single server info file.
func New(p Params) (ServerInfoFile, error) {
	m := module{
		fs:           p.FS,
		logger:       p.Logger,
		fileContents: make(map[string]string),
	}

	if err := m.processConfig(p.Config); err != nil {
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: m.OnStop,
	})

	return &m, nil
}

// OnStop removes the info file so tools cannot pick up a stale address.
func (m *module) OnStop(ctx context.Context) error {
	if m.infofile == "" {
		return nil
	}
	if err := m.fs.Remove(m.infofile); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// UpdateField sets the given key and rewrites the file.
func (m *module) UpdateField(key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fileContents[key] = value
	if err := m.writeLocked(); err != nil {
		return err
	}
	m.logger.Infow("server info saved", zap.String("file", m.infofile), zap.String(key, value))
	return nil
}

// DeleteField drops the given key and rewrites the file. Unknown keys are a no-op.
func (m *module) DeleteField(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.fileContents[key]; !ok {
		return nil
	}
	delete(m.fileContents, key)
	return m.writeLocked()
}

func (m *module) writeLocked() error {
	jsonOutput, err := json.Marshal(m.fileContents)
	if err != nil {
		return fmt.Errorf("marshalling json: %w", err)
	}

	if err := m.fs.MkdirAll(filepath.Dir(m.infofile)); err != nil {
		return fmt.Errorf("creating info file directory: %w", err)
	}
	if err := m.fs.WriteFile(m.infofile, jsonOutput); err != nil {
		return fmt.Errorf("creating info file: %w", err)
	}
	return nil
}

func (m *module) processConfig(cfg config.Provider) error {
	val := cfg.Get(_configKeyInfoFile)
	if err := val.Populate(&m.infofile); err != nil {
		// incorrectly formatted config
		return fmt.Errorf("getting config field %q: %w", _configKeyInfoFile, err)
	}

	if m.infofile == "" {
		// yaml is missing either the key or value
		return fmt.Errorf("missing field %q in config", _configKeyInfoFile)
	}

	return nil
}
