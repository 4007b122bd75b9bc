package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/galexite/guildsync"
	"github.com/galexite/guildsync/client"
	"github.com/galexite/guildsync/config"
)

const defaultConfigFile = "guildsync.yaml"

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write bucket settings to the config file",
	Long: `Prompt for the bucket URL, region and credentials and write them to the
config file (default: ./guildsync.yaml). Other settings already in the file
are kept. The file is written with mode 0600 since it holds the secret key.

The bucket is contacted with a signed HEAD request before saving.`,
	Args: cobra.NoArgs,
	RunE: runConfigure,
}

// fileConfig is the subset of the config file managed by configure.
type fileConfig struct {
	Bucket      fileBucket      `yaml:"bucket"`
	Credentials fileCredentials `yaml:"credentials"`
}

type fileBucket struct {
	URL    string `yaml:"url"`
	Region string `yaml:"region"`
}

type fileCredentials struct {
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

func runConfigure(cmd *cobra.Command, _ []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	path := defaultConfigFile
	if files, _ := cmd.Flags().GetStringSlice("config"); len(files) > 0 {
		path = files[len(files)-1]
	}

	doc, err := loadConfigDocument(path)
	if err != nil {
		return err
	}

	urlPrompt := promptui.Prompt{
		Label:   "Bucket URL",
		Default: cfg.Bucket.URL,
		Validate: func(input string) error {
			if input == "" {
				return errors.New("bucket URL is required")
			}
			parsedURL, parseErr := url.Parse(input)
			if parseErr != nil {
				return fmt.Errorf("invalid URL: %w", parseErr)
			}
			if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
				return errors.New("URL must start with http:// or https://")
			}
			return nil
		},
	}
	bucketURL, err := urlPrompt.Run()
	if err != nil {
		return handlePromptError(err)
	}

	regionPrompt := promptui.Prompt{
		Label:   "Region",
		Default: cfg.Bucket.Region,
		Validate: func(input string) error {
			if input == "" {
				return errors.New("region is required")
			}
			return nil
		},
	}
	region, err := regionPrompt.Run()
	if err != nil {
		return handlePromptError(err)
	}

	accessKeyPrompt := promptui.Prompt{
		Label:   "Access Key",
		Default: cfg.Credentials.AccessKey,
	}
	accessKey, err := accessKeyPrompt.Run()
	if err != nil {
		return handlePromptError(err)
	}

	secretKeyPrompt := promptui.Prompt{
		Label: fmt.Sprintf("Secret Key [%s]", client.MaskSecret(cfg.Credentials.SecretKey)),
		Mask:  '*',
	}
	secretKey, err := secretKeyPrompt.Run()
	if err != nil {
		return handlePromptError(err)
	}
	if secretKey == "" {
		secretKey = cfg.Credentials.SecretKey
	}

	clientCfg := &client.Config{
		BaseURL:   bucketURL,
		Region:    region,
		AccessKey: accessKey,
		SecretKey: secretKey,
	}

	fmt.Print("Testing connection... ")
	if connErr := testBucketConnection(cmd.Context(), clientCfg); connErr != nil {
		fmt.Println("FAILED")
		fmt.Printf("Warning: %v\n", connErr)

		continuePrompt := promptui.Prompt{
			Label:     "Save anyway",
			IsConfirm: true,
		}
		if _, promptErr := continuePrompt.Run(); promptErr != nil {
			fmt.Println("Cancelled.")
			return nil //nolint:nilerr // User cancelled, not an error
		}
	} else {
		fmt.Println("OK")
	}

	if err := setConfigValues(doc, fileConfig{
		Bucket:      fileBucket{URL: bucketURL, Region: region},
		Credentials: fileCredentials{AccessKey: accessKey, SecretKey: secretKey},
	}); err != nil {
		return err
	}

	if err := saveConfigDocument(path, doc); err != nil {
		return err
	}

	fmt.Printf("Saved %s\n", path)
	fmt.Printf("  Bucket:     %s\n", bucketURL)
	fmt.Printf("  Region:     %s\n", region)
	fmt.Printf("  Access Key: %s\n", accessKey)
	fmt.Printf("  Secret Key: %s\n", client.MaskSecret(secretKey))
	return nil
}

// loadConfigDocument reads path as a generic YAML mapping so unrelated keys
// survive a rewrite. A missing file yields an empty mapping.
func loadConfigDocument(path string) (map[string]any, error) {
	doc := make(map[string]any)

	data, err := os.ReadFile(path) //nolint:gosec // path is provided by the user
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return doc, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if doc == nil {
		doc = make(map[string]any)
	}
	return doc, nil
}

// setConfigValues merges the managed keys into doc.
func setConfigValues(doc map[string]any, values fileConfig) error {
	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	var managed map[string]map[string]any
	if err := yaml.Unmarshal(data, &managed); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	for section, keys := range managed {
		existing, _ := doc[section].(map[string]any)
		if existing == nil {
			existing = make(map[string]any)
		}
		for k, v := range keys {
			existing[k] = v
		}
		doc[section] = existing
	}
	return nil
}

func saveConfigDocument(path string, doc map[string]any) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// testBucketConnection sends a signed HEAD for events.json. Any response
// other than an auth failure means the settings are usable.
func testBucketConnection(ctx context.Context, cfg *client.Config) error {
	c, err := client.New(cfg, client.WithTimeout(5*time.Second))
	if err != nil {
		return err
	}

	_, err = c.Head(ctx, guildsync.ResourceEvents.String())
	switch client.Classify(err) {
	case client.TransportFailure, client.AuthFailure:
		return err
	default:
		return nil
	}
}

// handlePromptError handles promptui errors.
func handlePromptError(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) {
		fmt.Println("\nCancelled.")
		os.Exit(0)
	}
	if errors.Is(err, promptui.ErrAbort) {
		fmt.Println("Cancelled.")
		return nil
	}
	return err
}
