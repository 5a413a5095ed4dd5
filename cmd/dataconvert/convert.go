package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/akabaki/saas-ui/internal/conversion"
	"github.com/akabaki/saas-ui/internal/convert"
	"github.com/akabaki/saas-ui/internal/models"
	"github.com/akabaki/saas-ui/internal/parser"
)

const defaultMaxFileSizeMB = 50

var convertCmd = &cobra.Command{
	Use:   "convert FILES...",
	Short: "Convert CSV and XLSX files to JSON or XML",
	Long: `Convert runs one batch over FILES. Files are converted one at a time in the
order given; a file that fails does not stop the rest. Outputs are written to
--out as <name>.<format>. Unsupported file types are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringP("format", "f", "json", "output format: json or xml")
	convertCmd.Flags().StringP("out", "o", ".", "output directory")
	convertCmd.Flags().Int("max-size", defaultMaxFileSizeMB, "maximum input file size in MB")
	convertCmd.Flags().Bool("quiet", false, "suppress the progress bar")

	viper.BindPFlag("convert.format", convertCmd.Flags().Lookup("format"))
	viper.BindPFlag("convert.out", convertCmd.Flags().Lookup("out"))
	viper.BindPFlag("convert.max_size", convertCmd.Flags().Lookup("max-size"))

	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	outDir := viper.GetString("convert.out")
	maxMB := viper.GetInt("convert.max_size")
	quiet, _ := cmd.Flags().GetBool("quiet")

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	files := make([]models.UploadedFile, 0, len(args))
	for _, path := range args {
		f, err := readUpload(path)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	registry := parser.GetGlobalRegistry()
	converter := convert.NewConverter(registry, convert.WithMaxFileSize(int64(maxMB)*1024*1024))
	out := &dirArtifacts{dir: outDir}
	errOut := cmd.ErrOrStderr()

	var bar *pb.ProgressBar
	mgr := conversion.NewManager(registry, converter,
		conversion.WithArtifactStore(out),
		conversion.WithNotifier(&printNotifier{w: errOut}),
		conversion.WithCompletionHook(func(job models.ConversionJob) {
			if bar != nil {
				bar.Increment()
			}
		}),
	)
	mgr.SetPreviewEnabled(false)

	if _, err := mgr.SelectFormat(viper.GetString("convert.format")); err != nil {
		return err
	}

	accepted, rejected := mgr.AddFiles(files)
	for _, name := range rejected {
		fmt.Fprintf(errOut, "skipping %s: unsupported file type\n", name)
	}
	if len(accepted) == 0 {
		return fmt.Errorf("no convertible files given")
	}

	if !quiet {
		bar = pb.New(len(accepted))
		bar.SetWriter(errOut)
		bar.SetTemplate(`{{counters . }} {{bar . }} {{percent . }} {{etime . }}`)
		bar.Start()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	started := time.Now()
	_, err := mgr.RunBatch(ctx, "")
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}

	return printSummary(cmd.OutOrStdout(), mgr.Jobs(), out, time.Since(started))
}

func printSummary(w io.Writer, jobs []models.ConversionJob, out *dirArtifacts, elapsed time.Duration) error {
	failed := 0
	var records int64
	for _, j := range jobs {
		switch j.Status {
		case models.JobStatusCompleted:
			records += int64(j.RecordCount)
			fmt.Fprintf(w, "  ok    %s -> %s (%s records, %s)\n",
				j.FileName, filepath.Join(out.dir, j.ArtifactID),
				humanize.Comma(int64(j.RecordCount)), humanize.Bytes(uint64(out.size(j.ArtifactID))))
		case models.JobStatusError:
			failed++
			fmt.Fprintf(w, "  error %s: %s\n", j.FileName, j.Error)
		}
	}

	fmt.Fprintf(w, "\n%d of %d file(s) converted, %s records in %s\n",
		len(jobs)-failed, len(jobs), humanize.Comma(records), elapsed.Round(time.Millisecond))
	if failed > 0 {
		return fmt.Errorf("%d file(s) failed", failed)
	}
	return nil
}

// dirArtifacts writes outputs into a directory under their download name.
// A name already written in this run gets a numeric suffix (data-1.json).
type dirArtifacts struct {
	dir string

	mu    sync.Mutex
	sizes map[string]int64
}

func (d *dirArtifacts) SaveBytes(name string, data []byte) (*models.FileInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sizes == nil {
		d.sizes = make(map[string]int64)
	}

	unique := name
	ext := filepath.Ext(name)
	for i := 1; ; i++ {
		if _, taken := d.sizes[unique]; !taken {
			break
		}
		unique = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), i, ext)
	}

	if err := os.WriteFile(filepath.Join(d.dir, unique), data, 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", unique, err)
	}
	d.sizes[unique] = int64(len(data))
	return &models.FileInfo{ID: unique, Name: unique, Size: int64(len(data)), CreatedAt: time.Now()}, nil
}

func (d *dirArtifacts) ReadBytes(id string) ([]byte, error) {
	return os.ReadFile(filepath.Join(d.dir, id))
}

func (d *dirArtifacts) Delete(id string) error {
	d.mu.Lock()
	delete(d.sizes, id)
	d.mu.Unlock()
	return os.Remove(filepath.Join(d.dir, id))
}

func (d *dirArtifacts) size(id string) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sizes[id]
}

// printNotifier prints batch notifications as plain lines.
type printNotifier struct {
	w io.Writer
}

func (p *printNotifier) Notify(level models.NotificationLevel, title, description string, _ time.Duration) models.Notification {
	fmt.Fprintf(p.w, "%s: %s\n", title, description)
	return models.Notification{Level: level, Title: title, Description: description, CreatedAt: time.Now()}
}
