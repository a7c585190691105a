// Package opener opens a document in whatever word processor the platform
// offers.
//
// Each platform has a chain of strategies tried in order; the first that
// succeeds is reported in Result.Method. Installed applications are probed
// once per Opener, on first use.
package opener

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// ErrNoApplication is returned when no strategy could open the document.
var ErrNoApplication = errors.New("no application available to open document")

// Application keys in the detected set.
const (
	appPrimary   = "primary"   // Microsoft Word
	appSecondary = "secondary" // WPS, LibreOffice and similar
)

// Result describes how a document was opened.
type Result struct {
	// Method names the strategy that worked, e.g. "xdg-open" or "open-command".
	Method string
}

// Config holds opener configuration.
type Config struct {
	// Platform overrides runtime.GOOS (default: runtime.GOOS)
	Platform string

	// CommandTimeout bounds each blocking launcher command (default: 10s)
	CommandTimeout time.Duration

	// Logger for opener activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Platform:       runtime.GOOS,
		CommandTimeout: 10 * time.Second,
		Logger:         log.New(os.Stderr, "[opener] ", log.LstdFlags),
	}
}

// Opener launches documents. The zero value is not usable; call New.
type Opener struct {
	config *Config

	once sync.Once
	apps map[string]string

	// process hooks, replaced in tests
	lookPath func(file string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error
	start    func(name string, args ...string) error
	exists   func(path string) bool
	getenv   func(key string) string
}

// New creates an Opener. A nil config uses DefaultConfig.
func New(config *Config) *Opener {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.Platform == "" {
		config.Platform = defaults.Platform
	}
	if config.CommandTimeout <= 0 {
		config.CommandTimeout = defaults.CommandTimeout
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Opener{
		config:   config,
		apps:     make(map[string]string),
		lookPath: exec.LookPath,
		run:      runCommand,
		start:    startDetached,
		exists:   fileExists,
		getenv:   os.Getenv,
	}
}

// Open opens path. preferPrimary favors Microsoft Word over alternatives
// where the platform lets us choose.
func (o *Opener) Open(ctx context.Context, path string, preferPrimary bool) (Result, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	f, err := os.Open(abs)
	if err != nil {
		return Result{}, fmt.Errorf("document not readable: %w", err)
	}
	_ = f.Close()

	o.once.Do(o.detect)

	switch o.config.Platform {
	case "windows":
		return o.openWindows(ctx, abs, preferPrimary)
	case "darwin":
		return o.openMacOS(ctx, abs, preferPrimary)
	default:
		return o.openLinux(abs)
	}
}

// Detected returns a copy of the applications found on this machine.
func (o *Opener) Detected() map[string]string {
	o.once.Do(o.detect)

	out := make(map[string]string, len(o.apps))
	for k, v := range o.apps {
		out[k] = v
	}
	return out
}

func (o *Opener) detect() {
	switch o.config.Platform {
	case "windows":
		o.detectWindows()
	case "darwin":
		o.detectMacOS()
	default:
		o.detectLinux()
	}
	o.config.Logger.Printf("Detected applications: %v", o.apps)
}

func (o *Opener) detectWindows() {
	localAppData := o.getenv("LOCALAPPDATA")

	word := []string{
		`C:\Program Files\Microsoft Office\root\Office16\WINWORD.EXE`,
		`C:\Program Files (x86)\Microsoft Office\root\Office16\WINWORD.EXE`,
		`C:\Program Files\Microsoft Office\Office15\WINWORD.EXE`,
	}
	wps := []string{
		`C:\Program Files\WPS Office\ksolaunch.exe`,
		`C:\Program Files (x86)\WPS Office\ksolaunch.exe`,
	}
	if localAppData != "" {
		word = append(word, localAppData+`\Microsoft\WindowsApps\WINWORD.EXE`)
		wps = append(wps, localAppData+`\Kingsoft\WPS Office\ksolaunch.exe`)
	}

	o.firstExisting(appPrimary, word)
	o.firstExisting(appSecondary, wps)
}

var macApps = []string{
	"/Applications/Microsoft Word.app",
	"/Applications/WPS Office.app",
	"/Applications/LibreOffice.app",
}

func (o *Opener) detectMacOS() {
	o.firstExisting(appPrimary, macApps[:1])
	o.firstExisting(appSecondary, macApps[1:])
}

var linuxApps = []string{"wps", "libreoffice", "soffice", "onlyoffice"}

func (o *Opener) detectLinux() {
	for _, app := range linuxApps {
		if p, err := o.lookPath(app); err == nil {
			o.apps[appSecondary] = p
			return
		}
	}
}

func (o *Opener) firstExisting(key string, candidates []string) {
	for _, p := range candidates {
		if o.exists(p) {
			o.apps[key] = p
			return
		}
	}
}

func (o *Opener) preferred(preferPrimary bool) string {
	first, second := appPrimary, appSecondary
	if !preferPrimary {
		first, second = second, first
	}
	if app := o.apps[first]; app != "" {
		return app
	}
	return o.apps[second]
}

func (o *Opener) openWindows(ctx context.Context, path string, preferPrimary bool) (Result, error) {
	native := strings.ReplaceAll(path, "/", `\`)

	err := o.runWithTimeout(ctx, "cmd", "/c", "start", "", native)
	if err == nil {
		return Result{Method: "start-command"}, nil
	}
	o.config.Logger.Printf("start failed: %v", err)

	err = o.runWithTimeout(ctx, "explorer", native)
	if err == nil {
		return Result{Method: "explorer"}, nil
	}
	o.config.Logger.Printf("explorer failed: %v", err)

	if app := o.preferred(preferPrimary); app != "" {
		if err := o.start(app, native); err == nil {
			return Result{Method: "direct-executable"}, nil
		}
	}

	return Result{}, fmt.Errorf("%w: install Word or WPS Office", ErrNoApplication)
}

func (o *Opener) openMacOS(ctx context.Context, path string, preferPrimary bool) (Result, error) {
	err := o.runWithTimeout(ctx, "open", path)
	if err == nil {
		return Result{Method: "open-command"}, nil
	}
	o.config.Logger.Printf("open failed: %v", err)

	apps := macApps
	if !preferPrimary {
		apps = append(append([]string{}, macApps[1:]...), macApps[0])
	}
	for _, app := range apps {
		if !o.exists(app) {
			continue
		}
		if err := o.runWithTimeout(ctx, "open", "-a", app, path); err == nil {
			return Result{Method: "specific-app"}, nil
		}
	}

	return Result{}, fmt.Errorf("%w: no document editor found in /Applications", ErrNoApplication)
}

func (o *Opener) openLinux(path string) (Result, error) {
	if _, err := o.lookPath("xdg-open"); err == nil {
		if err := o.start("xdg-open", path); err == nil {
			return Result{Method: "xdg-open"}, nil
		}
	}

	for _, app := range append(append([]string{}, linuxApps...), "gnome-open", "kde-open") {
		p, err := o.lookPath(app)
		if err != nil {
			continue
		}
		if err := o.start(p, path); err == nil {
			return Result{Method: app}, nil
		}
	}

	return Result{}, fmt.Errorf("%w: install WPS, LibreOffice or OnlyOffice", ErrNoApplication)
}

func (o *Opener) runWithTimeout(ctx context.Context, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, o.config.CommandTimeout)
	defer cancel()
	return o.run(ctx, name, args...)
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return err
	}
	return nil
}

// startDetached launches a GUI application without waiting for it.
func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
