package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSSM struct {
	params map[string]string
	gotIn  []*ssm.GetParameterInput
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.gotIn = append(f.gotIn, in)
	v, ok := f.params[aws.ToString(in.Name)]
	if !ok {
		return nil, errors.New("ParameterNotFound")
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String(v)}}, nil
}

func TestSSMLookup(t *testing.T) {
	api := &fakeSSM{params: map[string]string{"podaac-sst-edl-username": "alice"}}
	s := NewSSMWithAPI(api)

	v, err := s.Lookup(context.Background(), "podaac-sst-edl-username")
	require.NoError(t, err)
	assert.Equal(t, "alice", v)
	require.Len(t, api.gotIn, 1)
	assert.True(t, aws.ToBool(api.gotIn[0].WithDecryption))

	_, err = s.Lookup(context.Background(), "podaac-sst-edl-password")
	assert.ErrorContains(t, err, "podaac-sst-edl-password")
}

func TestEnvLookup(t *testing.T) {
	t.Setenv("PODAAC_SST_EDL_PASSWORD", "s3cret")
	e := NewEnv()

	v, err := e.Lookup(context.Background(), "podaac-sst-edl-password")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", v)

	_, err = e.Lookup(context.Background(), "nsidc-sst-edl-password")
	assert.ErrorIs(t, err, ErrNotFound)
}
