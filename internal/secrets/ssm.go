// Package secrets resolves runtime secrets, currently the API key, from AWS
// Systems Manager Parameter Store.
package secrets

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/tfmkt/transfermarkt-api/internal/xerrors"
)

// SSMAPI is the subset of the SSM client used here.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type Loader struct {
	client SSMAPI
}

// NewLoader uses client when given, otherwise builds one from the default AWS
// credential chain.
func NewLoader(ctx context.Context, client SSMAPI) (*Loader, error) {
	if client == nil {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, xerrors.Wrap(err, "load AWS config")
		}
		client = ssm.NewFromConfig(awsCfg)
	}
	return &Loader{client: client}, nil
}

// Get returns the decrypted, trimmed value of a parameter. Empty values are
// an error.
func (l *Loader) Get(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", xerrors.New("SSM parameter name is required")
	}
	out, err := l.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", name)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", name)
	}
	v := strings.TrimSpace(*out.Parameter.Value)
	if v == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", name)
	}
	return v, nil
}
