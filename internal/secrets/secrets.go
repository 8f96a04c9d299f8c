// Package secrets looks up named secrets such as the Earthdata identity.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ErrNotFound is returned for a secret that does not exist.
var ErrNotFound = errors.New("secret not found")

// Store resolves a secret by name.
type Store interface {
	Lookup(ctx context.Context, name string) (string, error)
}

// ParameterGetter is the subset of the SSM API used by SSM.
type ParameterGetter interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSM reads decrypted parameters from the AWS Systems Manager parameter store.
type SSM struct {
	api ParameterGetter
}

// NewSSM creates an SSM store for the region using the default AWS
// credential chain.
func NewSSM(ctx context.Context, region string) (*SSM, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("cannot load AWS config: %w", err)
	}
	return &SSM{api: ssm.NewFromConfig(cfg)}, nil
}

// NewSSMWithAPI wraps an existing SSM API client.
func NewSSMWithAPI(api ParameterGetter) *SSM {
	return &SSM{api: api}
}

// Lookup returns the decrypted value of the named parameter.
func (s *SSM) Lookup(ctx context.Context, name string) (string, error) {
	out, err := s.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("cannot get parameter %q: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("%w: parameter %q has no value", ErrNotFound, name)
	}
	return *out.Parameter.Value, nil
}

// Env reads secrets from environment variables. The variable name is the
// secret name upper-cased with dashes replaced by underscores, so
// "podaac-sst-edl-username" is read from PODAAC_SST_EDL_USERNAME.
type Env struct {
	lookup func(string) (string, bool)
}

// NewEnv creates an environment-backed store.
func NewEnv() *Env {
	return &Env{lookup: os.LookupEnv}
}

// EnvName returns the environment variable holding the named secret.
func EnvName(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// Lookup returns the value of the secret's environment variable.
func (e *Env) Lookup(_ context.Context, name string) (string, error) {
	v, ok := e.lookup(EnvName(name))
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s is not set", ErrNotFound, EnvName(name))
	}
	return v, nil
}
