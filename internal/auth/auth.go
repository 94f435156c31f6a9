package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
)

const credentialDir = ".beybladez"

// ErrNoKey is returned when no source yields an API key.
var ErrNoKey = errors.New("API key not found")

// Source names where a key came from. Only the source is ever logged.
type Source string

const (
	SourceNone Source = ""
	SourceEnv  Source = "env"
	SourceSSM  Source = "ssm"
	SourceGPG  Source = "gpg"
)

// ParameterReader is the subset of the SSM client used to read a key.
type ParameterReader interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Options configures the non-environment sources. Both SSM fields must be
// set for the SSM source to be tried.
type Options struct {
	SSM      ParameterReader
	SSMParam string
}

// EnvVar returns the environment variable holding the key for provider.
func EnvVar(provider string) (string, error) {
	switch provider {
	case "openai":
		return "OPENAI_API_KEY", nil
	case "gemini":
		return "GEMINI_API_KEY", nil
	default:
		return "", fmt.Errorf("unknown provider %q", provider)
	}
}

// GetAPIKey retrieves the API key for provider from available sources.
// Priority order:
//  1. OPENAI_API_KEY / GEMINI_API_KEY environment variable
//  2. SSM parameter opts.SSMParam, decrypted
//  3. GPG-encrypted file at ~/.beybladez/credentials-<provider>.gpg
func GetAPIKey(ctx context.Context, provider string, opts Options) (string, Source, error) {
	envVar, err := EnvVar(provider)
	if err != nil {
		return "", SourceNone, err
	}

	if key := strings.TrimSpace(os.Getenv(envVar)); key != "" {
		log.Debug().Str("var", envVar).Msg("Using API key from environment variable")
		return key, SourceEnv, nil
	}

	var errs []error
	if opts.SSM != nil && opts.SSMParam != "" {
		key, err := getFromSSM(ctx, opts.SSM, opts.SSMParam)
		if err == nil && key != "" {
			return key, SourceSSM, nil
		}
		errs = append(errs, err)
	}

	key, err := getFromGPG(provider)
	if err == nil && key != "" {
		log.Debug().Msg("Using API key from GPG encrypted file")
		return key, SourceGPG, nil
	}
	errs = append(errs, err)

	cause := errors.Join(errs...)
	log.Debug().Err(cause).Str("provider", provider).Msg("No API key source available")
	return "", SourceNone, fmt.Errorf("%w: set %s or configure BEYBLADEZ_API_KEY_SSM_PARAM: %w", ErrNoKey, envVar, cause)
}

func getFromSSM(ctx context.Context, client ParameterReader, paramName string) (string, error) {
	start := time.Now()
	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(paramName),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to read API key from SSM %s: %w", paramName, err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("SSM parameter %s has no value", paramName)
	}
	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(start)).Msg("API key loaded from SSM")
	return strings.TrimSpace(*result.Parameter.Value), nil
}

// getFromGPG decrypts the API key from the GPG-encrypted credentials file.
func getFromGPG(provider string) (string, error) {
	credPath, err := getCredentialPath(provider)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(credPath); os.IsNotExist(err) {
		return "", fmt.Errorf("GPG credentials file not found at %s", credPath)
	}

	log.Debug().Str("file", credPath).Msg("Decrypting GPG credentials")

	args := []string{"--decrypt", "--quiet"}

	passphrasePath, err := getPassphrasePath()
	if err == nil {
		fi, statErr := os.Stat(passphrasePath)
		if statErr == nil {
			// The passphrase file must be owner-only.
			mode := fi.Mode().Perm()
			if mode&0077 != 0 {
				log.Warn().
					Str("passphrase_file", passphrasePath).
					Str("permissions", fmt.Sprintf("%04o", mode)).
					Msg("Passphrase file has insecure permissions (should be 0600); skipping")
			} else {
				log.Debug().Str("passphrase_file", passphrasePath).Msg("Using passphrase file for GPG decryption")
				args = append(args, "--pinentry-mode", "loopback", "--passphrase-file", passphrasePath)
			}
		}
	}

	args = append(args, credPath)
	cmd := exec.Command("gpg", args...)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("GPG decryption failed: %s", string(exitErr.Stderr))
		}
		return "", fmt.Errorf("GPG decryption failed: %w", err)
	}

	return strings.TrimSpace(string(output)), nil
}

// getCredentialPath returns the full path to the credentials file for provider.
func getCredentialPath(provider string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, credentialDir, "credentials-"+provider+".gpg"), nil
}

// getPassphrasePath returns the path to the GPG passphrase file, checking
// the executable's directory first and then the working directory.
func getPassphrasePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}

	passphrasePath := filepath.Join(filepath.Dir(exe), ".gpg-passphrase")
	if _, err := os.Stat(passphrasePath); err == nil {
		return passphrasePath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	return filepath.Join(cwd, ".gpg-passphrase"), nil
}
