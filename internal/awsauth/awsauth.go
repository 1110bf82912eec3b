// Package awsauth checks and refreshes the AWS credentials forge runs under.
package awsauth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/randomizedcoder/go-forge-runner/internal/shell"
)

// Error is an authentication or authorization failure. It is fatal to the
// whole invocation.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// tokenLayouts accept a numeric zone offset with or without a colon, or Z.
var tokenLayouts = []string{
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05Z07:00",
}

// ParseTokenExpiration parses an AWS_TOKEN_EXPIRATION value.
func ParseTokenExpiration(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range tokenLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// AssertTokenExpiration fails unless expiration is a valid timestamp after now.
func AssertTokenExpiration(expiration string, now time.Time) error {
	if expiration == "" {
		return &Error{Msg: "AWS token is required"}
	}
	t, err := ParseTokenExpiration(expiration)
	if err != nil {
		return &Error{Msg: "Invalid date format: " + expiration, Err: err}
	}
	if now.After(t) {
		return &Error{Msg: "AWS token has expired"}
	}
	return nil
}

// Identity resolves the AWS account the credentials belong to.
type Identity interface {
	AccountID(ctx context.Context) (string, error)
}

// CLIIdentity asks the aws cli.
type CLIIdentity struct {
	Shell shell.Shell
}

func (c *CLIIdentity) AccountID(ctx context.Context) (string, error) {
	res, err := c.Shell.Run(ctx, []string{"aws", "sts", "get-caller-identity"})
	if err != nil {
		return "", &Error{Msg: "get caller identity", Err: err}
	}
	out, err := res.Unwrap()
	if err != nil {
		return "", &Error{Msg: "get caller identity", Err: err}
	}
	var id struct {
		Account string `json:"Account"`
	}
	if err := json.Unmarshal(out, &id); err != nil {
		return "", fmt.Errorf("decode caller identity: %w", err)
	}
	if id.Account == "" {
		return "", &Error{Msg: "caller identity has no account"}
	}
	return id.Account, nil
}

// CallerIdentityAPI is the part of the STS client we use.
type CallerIdentityAPI interface {
	GetCallerIdentity(ctx context.Context, in *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// STSIdentity asks STS directly.
type STSIdentity struct {
	Client CallerIdentityAPI
}

func (s *STSIdentity) AccountID(ctx context.Context) (string, error) {
	out, err := s.Client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", &Error{Msg: "get caller identity", Err: err}
	}
	account := aws.ToString(out.Account)
	if account == "" {
		return "", &Error{Msg: "caller identity has no account"}
	}
	return account, nil
}

// LoadConfig loads the default credential chain for region.
func LoadConfig(ctx context.Context, region string) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return aws.Config{}, &Error{Msg: "load aws config", Err: err}
	}
	return cfg, nil
}

// SourceAuthScript runs script in bash and returns the AWS_* variables it
// exports.
func SourceAuthScript(ctx context.Context, sh shell.Shell, script string) (map[string]string, error) {
	if script == "" {
		return nil, &Error{Msg: "Please authenticate with AWS and rerun"}
	}
	res, err := sh.Run(ctx, []string{"bash", "-c", "source " + script + " && env | grep AWS_"})
	if err != nil {
		return nil, &Error{Msg: "source auth script", Err: err}
	}
	out, err := res.Unwrap()
	if err != nil {
		return nil, &Error{Msg: "source auth script", Err: err}
	}

	vars := make(map[string]string)
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.HasPrefix(line, "AWS_") {
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok {
			vars[k] = v
		}
	}
	return vars, nil
}

// Refresh sources script into this process's environment and then runs
// verify, which should be a cheap authenticated read.
func Refresh(ctx context.Context, sh shell.Shell, script string, verify func(context.Context) error) error {
	vars, err := SourceAuthScript(ctx, sh, script)
	if err != nil {
		return err
	}
	for k, v := range vars {
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	if err := verify(ctx); err != nil {
		return &Error{Msg: "AWS credentials still invalid after sourcing " + script, Err: err}
	}
	return nil
}
