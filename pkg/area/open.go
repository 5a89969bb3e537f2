package area

import (
	"context"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/uprent-dev/commutesync/internal/config"
	"github.com/uprent-dev/commutesync/internal/errors"
)

// Open creates the authoritative area selected by cfg.Storage.Driver.
func Open(ctx context.Context, cfg *config.Config) (Area, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return NewMemory(), nil

	case config.DriverSQLite:
		return OpenSQLite(cfg.DatabasePath())

	case config.DriverS3:
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.Storage.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.Storage.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, errors.New("S024").WithDetail("load AWS config").Wrap(err)
		}
		return NewS3(s3.NewFromConfig(awsCfg), cfg.Storage.Bucket, cfg.Storage.Prefix), nil

	default:
		return nil, errors.New("S023").WithDetail("got " + cfg.Storage.Driver)
	}
}
