// Package launcher starts isolated transcoding jobs for uploaded videos.
// The job itself is opaque: it is handed the input key and bucket names
// through its environment and emits no synchronous result. Completion is
// observed by the reconciliation loop, never by the launcher.
package launcher

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"

	"github.com/vodworks/pipeline/pkg/models"
)

// Launcher starts a transcoding job for an uploaded object key.
type Launcher interface {
	Launch(ctx context.Context, inputKey string) error
}

// ECSClient is the subset of the ECS API the launcher uses.
type ECSClient interface {
	RunTask(ctx context.Context, params *ecs.RunTaskInput, optFns ...func(*ecs.Options)) (*ecs.RunTaskOutput, error)
}

// Config parameterizes the transcoding task.
type Config struct {
	Cluster         string
	TaskDefinition  string
	ContainerName   string
	Subnets         []string
	SecurityGroups  []string
	AssignPublicIP  bool
	Region          string
	RawBucket       string
	ProcessedBucket string
	LaunchTimeout   time.Duration
}

// ECSLauncher runs the transcoding task definition on an ECS cluster.
type ECSLauncher struct {
	client ECSClient
	cfg    Config
}

// NewECSLauncher creates an ECSLauncher.
func NewECSLauncher(client ECSClient, cfg Config) *ECSLauncher {
	if cfg.LaunchTimeout <= 0 {
		cfg.LaunchTimeout = 30 * time.Second
	}
	return &ECSLauncher{client: client, cfg: cfg}
}

// Launch starts one transcoding task for the given raw-bucket key.
// The call is fire-and-forget: no task handle is retained and no completion
// signal exists. A hung control plane is bounded by the launch timeout.
func (l *ECSLauncher) Launch(ctx context.Context, inputKey string) error {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.LaunchTimeout)
	defer cancel()

	assignPublicIP := ecstypes.AssignPublicIpDisabled
	if l.cfg.AssignPublicIP {
		assignPublicIP = ecstypes.AssignPublicIpEnabled
	}

	out, err := l.client.RunTask(ctx, &ecs.RunTaskInput{
		Cluster:        aws.String(l.cfg.Cluster),
		TaskDefinition: aws.String(l.cfg.TaskDefinition),
		LaunchType:     ecstypes.LaunchTypeFargate,
		Count:          aws.Int32(1),
		NetworkConfiguration: &ecstypes.NetworkConfiguration{
			AwsvpcConfiguration: &ecstypes.AwsVpcConfiguration{
				Subnets:        l.cfg.Subnets,
				SecurityGroups: l.cfg.SecurityGroups,
				AssignPublicIp: assignPublicIP,
			},
		},
		Overrides: &ecstypes.TaskOverride{
			ContainerOverrides: []ecstypes.ContainerOverride{
				{
					Name: aws.String(l.cfg.ContainerName),
					Environment: []ecstypes.KeyValuePair{
						{Name: aws.String("AWS_REGION"), Value: aws.String(l.cfg.Region)},
						{Name: aws.String("KEY"), Value: aws.String(inputKey)},
						{Name: aws.String("AWS_BUCKET_NAME"), Value: aws.String(l.cfg.RawBucket)},
						{Name: aws.String("UPLOAD_BUCKET_NAME"), Value: aws.String(l.cfg.ProcessedBucket)},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrLaunchFailed, err)
	}

	if len(out.Tasks) == 0 {
		if len(out.Failures) > 0 {
			f := out.Failures[0]
			return fmt.Errorf("%w: %s (%s)", models.ErrLaunchFailed,
				aws.ToString(f.Reason), aws.ToString(f.Detail))
		}
		return fmt.Errorf("%w: no task started", models.ErrLaunchFailed)
	}

	return nil
}
