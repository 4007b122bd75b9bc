package keybackend

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/galexite/guildsync"
)

// CredentialsConfig says where the client's signing credentials come from.
// An explicit pair wins. Otherwise the keys file is used: the entry matching
// AccessKey if one is given, else the first entry. Otherwise Profile names a
// profile in the AWS shared config and credentials files.
type CredentialsConfig struct {
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	KeysFile  string `mapstructure:"keys_file"`
	Profile   string `mapstructure:"profile"`

	// SharedCredentialsFile overrides ~/.aws/credentials for Profile.
	SharedCredentialsFile string `mapstructure:"shared_credentials_file"`
}

// NewCredentialsProvider returns a provider for the configured credentials.
// Profile credentials are resolved through the AWS SDK chain, so
// AWS_SHARED_CREDENTIALS_FILE, AWS_CONFIG_FILE and credential_process
// entries are honoured.
func NewCredentialsProvider(ctx context.Context, cfg CredentialsConfig) (aws.CredentialsProvider, error) {
	pair := KeyPair{AccessKey: cfg.AccessKey, SecretKey: cfg.SecretKey}

	if !pair.Valid() && cfg.KeysFile != "" {
		pairs, err := LoadKeyPairsFromFile(cfg.KeysFile)
		if err != nil {
			return nil, fmt.Errorf("new credentials provider: %w", err)
		}
		pair = pickPair(pairs, cfg.AccessKey)
		if !pair.Valid() {
			return nil, fmt.Errorf("new credentials provider: %w", ErrNoCredentials)
		}
	}

	if pair.Valid() {
		return credentials.NewStaticCredentialsProvider(pair.AccessKey, pair.SecretKey, ""), nil
	}

	if cfg.Profile == "" {
		return nil, fmt.Errorf("new credentials provider: %w", ErrNoCredentials)
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithSharedConfigProfile(cfg.Profile),
	}
	if cfg.SharedCredentialsFile != "" {
		opts = append(opts, awsconfig.WithSharedCredentialsFiles([]string{cfg.SharedCredentialsFile}))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("new credentials provider: load aws profile %q: %w", cfg.Profile, err)
	}
	if awsCfg.Credentials == nil {
		return nil, fmt.Errorf("new credentials provider: profile %q: %w", cfg.Profile, ErrNoCredentials)
	}

	return awsCfg.Credentials, nil
}

// ResolveCredentials retrieves credentials from provider for use with
// guildsync.Signer.
func ResolveCredentials(ctx context.Context, provider aws.CredentialsProvider) (guildsync.Credentials, error) {
	creds, err := provider.Retrieve(ctx)
	if err != nil {
		return guildsync.Credentials{}, fmt.Errorf("resolve credentials: %w", err)
	}

	if creds.SessionToken != "" {
		return guildsync.Credentials{}, fmt.Errorf("resolve credentials from %s: %w", creds.Source, ErrSessionTokenUnsupported)
	}

	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return guildsync.Credentials{}, fmt.Errorf("resolve credentials: %w", ErrNoCredentials)
	}

	return guildsync.Credentials{
		AccessKey: creds.AccessKeyID,
		SecretKey: creds.SecretAccessKey,
	}, nil
}

func pickPair(pairs []KeyPair, accessKey string) KeyPair {
	if len(pairs) == 0 {
		return KeyPair{}
	}
	if accessKey == "" {
		return pairs[0]
	}
	for _, p := range pairs {
		if p.AccessKey == accessKey {
			return p
		}
	}
	return KeyPair{}
}
