package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/yourusername/stockmeta/handlers"
	"github.com/yourusername/stockmeta/models"
	"github.com/yourusername/stockmeta/services"
	"go.uber.org/zap"
)

var (
	mdTitle       string
	mdDescription string
	mdKeywords    string
	mdAuthor      string
	mdCopyright   string
	outDir        string
	convertJPEG   bool
)

var embedCmd = &cobra.Command{
	Use:   "embed <image>...",
	Short: "Write metadata into images",
	Long: `Embed writes the metadata into each JPEG and saves it under --out.
Other formats are copied unchanged next to an .xmp sidecar, unless --convert
re-encodes them as JPEG first.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEmbed,
}

var sidecarCmd = &cobra.Command{
	Use:   "sidecar <image>...",
	Short: "Write .xmp sidecars for images",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSidecar,
}

func init() {
	for _, cmd := range []*cobra.Command{embedCmd, sidecarCmd} {
		cmd.Flags().StringVar(&mdTitle, "title", "", "Image title")
		cmd.Flags().StringVar(&mdDescription, "description", "", "Image description")
		cmd.Flags().StringVar(&mdKeywords, "keywords", "", "Keywords, comma/semicolon separated or a JSON array")
		cmd.Flags().StringVar(&mdAuthor, "author", "", "Author (dc:creator, EXIF Artist)")
		cmd.Flags().StringVar(&mdCopyright, "copyright", "", "Copyright notice")
		cmd.Flags().StringVarP(&outDir, "out", "o", "out", "Output directory")
	}
	embedCmd.Flags().BoolVar(&convertJPEG, "convert", false, "Re-encode non-JPEG images as JPEG so metadata can be embedded")
}

func metadataFromFlags() (models.ImageMetadata, error) {
	keywords, err := handlers.ParseKeywords(mdKeywords)
	if err != nil {
		return models.ImageMetadata{}, err
	}
	return handlers.NewMetadata(handlers.MetadataRequest{
		Title:       mdTitle,
		Description: mdDescription,
		Keywords:    keywords,
		Author:      mdAuthor,
		Copyright:   mdCopyright,
	})
}

func writeOutput(name string, data []byte) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	dst := filepath.Join(outDir, name)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return dst, nil
}

func loadEmbedConfig() services.EmbedConfig {
	cfg, err := services.LoadConfig(configPath)
	if err != nil {
		logger.Warn("config not loaded, using defaults", zap.Error(err))
		return services.DefaultConfig().Embed
	}
	return cfg.Embed
}

func runEmbed(cmd *cobra.Command, args []string) error {
	md, err := metadataFromFlags()
	if err != nil {
		return err
	}
	if !md.HasContent() {
		return fmt.Errorf("nothing to embed: give --title, --description or --keywords")
	}
	embedCfg := loadEmbedConfig()
	renderedAt := time.Now()
	names := services.NewOutputNames()

	for _, src := range args {
		data, err := os.ReadFile(src)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", src, err)
		}
		name := filepath.Base(src)

		if convertJPEG && services.NeedsXMPSidecar(name) {
			out, err := services.ConvertToJPEG(data, services.ConvertOptions{
				Quality:      embedCfg.JPEGQuality,
				MaxDimension: embedCfg.MaxDimension,
			}, md, renderedAt)
			if err != nil {
				return fmt.Errorf("failed to convert %s: %w", src, err)
			}
			name = names.Claim(name[:len(name)-len(filepath.Ext(name))]+".jpg", false)
			dst, err := writeOutput(name, out)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dst)
			continue
		}

		name = names.Claim(name, services.NeedsXMPSidecar(name))
		exp := services.PrepareExport(data, md, name, renderedAt)
		dst, err := writeOutput(exp.ImageName, exp.Image)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), dst)
		if len(exp.Sidecar) > 0 {
			dst, err := writeOutput(exp.SidecarName, exp.Sidecar)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dst)
		}
		logger.Debug("processed", zap.String("file", src), zap.Stringer("policy", exp.Policy))
	}
	return nil
}

func runSidecar(cmd *cobra.Command, args []string) error {
	md, err := metadataFromFlags()
	if err != nil {
		return err
	}
	if !md.HasContent() {
		return fmt.Errorf("nothing to write: give --title, --description or --keywords")
	}
	renderedAt := time.Now()
	// Renaming a sidecar would unpair it from the image, so a clash is an error.
	owners := map[string]string{}
	for _, src := range args {
		name := services.GetXMPFilename(filepath.Base(src))
		key := strings.ToLower(name)
		if prev, ok := owners[key]; ok {
			return fmt.Errorf("%s and %s would both write %s", prev, src, name)
		}
		owners[key] = src
	}
	for _, src := range args {
		doc := services.GenerateXMPContent(md, renderedAt)
		dst, err := writeOutput(services.GetXMPFilename(filepath.Base(src)), []byte(doc))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), dst)
	}
	return nil
}
