package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ValidatorConfig locates the unknown-hash listfile and the endpoint found
// names are reported to.
type ValidatorConfig struct {
	ListfilePath  string
	ListfileURL   string
	CheckFilesURL string
	UserAgent     string
	// MaxAge is how long a downloaded listfile is reused.
	MaxAge   time.Duration
	PageSize int
}

func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		ListfilePath:  "unk_listfile.txt",
		ListfileURL:   "https://bnet.marlam.in/listfile.php?unk=1",
		CheckFilesURL: "https://bnet.marlam.in/checkFiles.php",
		UserAgent:     "CASCPredictor/1.0 (+https://github.com/barncastle/CASC-Predictor)",
		MaxAge:        6 * time.Hour,
		PageSize:      20000,
	}
}

// FileValidator checks candidate filenames against the hashes of unnamed
// archive entries. Its lifecycle is Load, any number of Validate calls, then
// Sync.
type FileValidator struct {
	config   ValidatorConfig
	client   *http.Client
	store    *FoundStore
	notifier Notifier
	out      io.Writer
	logger   *slog.Logger

	hashes map[uint64]struct{}
}

// NewFileValidator creates a validator. notifier may be nil.
func NewFileValidator(cfg ValidatorConfig, store *FoundStore, notifier Notifier, out io.Writer, logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}

	return &FileValidator{
		config:   cfg,
		client:   &http.Client{Timeout: 5 * time.Minute},
		store:    store,
		notifier: notifier,
		out:      out,
		logger:   logger,
		hashes:   make(map[uint64]struct{}),
	}
}

// Load refreshes the cached listfile when it is stale and reads its hashes.
func (v *FileValidator) Load(ctx context.Context) error {
	if err := v.refreshListfile(ctx); err != nil {
		return err
	}

	f, err := os.Open(v.config.ListfilePath)
	if err != nil {
		return fmt.Errorf("opening listfile: %w", err)
	}
	defer f.Close()

	n, err := v.readHashes(f)
	if err != nil {
		return fmt.Errorf("reading listfile: %w", err)
	}

	v.logger.Info("Loaded unknown hashes", slog.Int("count", n), slog.String("file", v.config.ListfilePath))
	return nil
}

// Validate reports whether filename hashes to one of the unnamed archive
// entries and queues matches for Sync.
func (v *FileValidator) Validate(filename string) bool {
	if _, ok := v.hashes[Jenkins96(filename)]; !ok {
		return false
	}

	v.logger.Info("Found filename", slog.String("name", filename))
	if err := v.store.Record(filename); err != nil {
		v.logger.Error("Failed to record filename", slog.String("name", filename), slog.Any("err", err))
	}

	return true
}

// Sync prints every pending filename and reports it. Names that fail to post
// stay pending for the next run.
func (v *FileValidator) Sync(ctx context.Context) error {
	pending, err := v.store.Pending()
	if err != nil {
		return fmt.Errorf("reading found filenames: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	fmt.Fprintf(v.out, "Found %d filenames:\n", len(pending))
	for _, name := range pending {
		fmt.Fprintln(v.out, name)
	}

	size := v.config.PageSize
	if size <= 0 {
		size = len(pending)
	}

	var reported []string
	for page := range slices.Chunk(pending, size) {
		if err := v.post(ctx, page); err != nil {
			v.logger.Error("Unable to post found filenames", slog.String("url", v.config.CheckFilesURL), slog.Any("err", err))
			continue
		}

		if err := v.store.MarkReported(page); err != nil {
			return fmt.Errorf("marking filenames reported: %w", err)
		}
		reported = append(reported, page...)
	}

	if v.notifier != nil && len(reported) > 0 {
		if err := v.notifier.Notify(ctx, reported); err != nil {
			v.logger.Error("Failed to notify", slog.Any("err", err))
		}
	}

	return nil
}

func (v *FileValidator) refreshListfile(ctx context.Context) error {
	info, statErr := os.Stat(v.config.ListfilePath)
	if statErr == nil && time.Since(info.ModTime()) < v.config.MaxAge {
		return nil
	}

	err := v.download(ctx)
	if err == nil {
		return nil
	}

	if statErr == nil {
		v.logger.Warn("Unable to refresh listfile, using cached copy", slog.Any("err", err))
		return nil
	}

	return fmt.Errorf("unable to download unknown listfile: %w", err)
}

func (v *FileValidator) download(ctx context.Context) error {
	u, err := url.Parse(v.config.ListfileURL)
	if err != nil {
		return err
	}

	q := u.Query()
	q.Set("t", strconv.FormatInt(time.Now().UnixNano(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", v.config.UserAgent)

	resp, err := v.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(v.config.ListfilePath), ".listfile_*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), v.config.ListfilePath)
}

// readHashes adds every line that parses as a hexadecimal or decimal uint64.
// Lines that parse both ways contribute both values.
func (v *FileValidator) readHashes(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if h, err := strconv.ParseUint(line, 16, 64); err == nil {
			v.hashes[h] = struct{}{}
		}
		if h, err := strconv.ParseUint(line, 10, 64); err == nil {
			v.hashes[h] = struct{}{}
		}
	}

	return len(v.hashes), scanner.Err()
}

func (v *FileValidator) post(ctx context.Context, names []string) error {
	form := url.Values{"files": {strings.Join(names, "\r\n")}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.config.CheckFilesURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", v.config.UserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	return nil
}
