// Package rds looks up the instance metadata a check needs: instance class
// memory, allocated storage and the max_connections parameter.
package rds

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	awsrds "github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

const (
	gib = 1 << 30
	mib = 1 << 20

	maxConnectionsParameter = "max_connections"
)

// RDSAPI is the part of the RDS client used by Provider.
type RDSAPI interface {
	DescribeDBInstances(ctx context.Context, params *awsrds.DescribeDBInstancesInput, optFns ...func(*awsrds.Options)) (*awsrds.DescribeDBInstancesOutput, error)
	awsrds.DescribeDBParametersAPIClient
}

// EC2API is the part of the EC2 client used by Provider.
type EC2API interface {
	DescribeInstanceTypes(ctx context.Context, params *ec2.DescribeInstanceTypesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstanceTypesOutput, error)
}

// Instance is the metadata of one database instance.
type Instance struct {
	Identifier            string
	Class                 string
	AllocatedStorageBytes float64
	MemoryBytes           float64
	ParameterGroup        string
	MaxConnectionsRaw     string
}

// MaxConnections resolves the max_connections parameter for this instance.
func (i Instance) MaxConnections() (float64, error) {
	mc, err := ParseMaxConnections(i.MaxConnectionsRaw)
	if err != nil {
		return 0, err
	}
	return mc.Resolve(i.MemoryBytes), nil
}

// Provider describes instances through the RDS and EC2 APIs.
type Provider struct {
	rds    RDSAPI
	ec2    EC2API
	logger *zap.Logger
}

// NewProvider creates a metadata provider.
func NewProvider(rdsAPI RDSAPI, ec2API EC2API, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{rds: rdsAPI, ec2: ec2API, logger: logger}
}

// NewFromConfig creates a Provider from an AWS configuration.
func NewFromConfig(cfg aws.Config, logger *zap.Logger) *Provider {
	return NewProvider(awsrds.NewFromConfig(cfg), ec2.NewFromConfig(cfg), logger)
}

// Describe fetches the metadata of the instance id.
func (p *Provider) Describe(ctx context.Context, id string) (Instance, error) {
	out, err := p.rds.DescribeDBInstances(ctx, &awsrds.DescribeDBInstancesInput{
		DBInstanceIdentifier: aws.String(id),
	})
	if err != nil {
		return Instance{}, describe("describe db instance", err)
	}
	if len(out.DBInstances) == 0 {
		return Instance{}, fmt.Errorf("db instance %s not found", id)
	}
	db := out.DBInstances[0]

	inst := Instance{
		Identifier:            id,
		Class:                 aws.ToString(db.DBInstanceClass),
		AllocatedStorageBytes: float64(aws.ToInt32(db.AllocatedStorage)) * gib,
	}
	if len(db.DBParameterGroups) == 0 {
		return Instance{}, fmt.Errorf("db instance %s has no parameter group: %w", id, ErrMissingParameter)
	}
	inst.ParameterGroup = aws.ToString(db.DBParameterGroups[0].DBParameterGroupName)

	raw, err := p.maxConnections(ctx, inst.ParameterGroup)
	if err != nil {
		return Instance{}, err
	}
	inst.MaxConnectionsRaw = raw

	mem, err := p.memory(ctx, inst.Class)
	if err != nil {
		return Instance{}, err
	}
	inst.MemoryBytes = mem

	p.logger.Debug("instance metadata",
		zap.String("instance", id),
		zap.String("class", inst.Class),
		zap.String("parameter_group", inst.ParameterGroup),
		zap.String("max_connections", raw),
		zap.Float64("memory_bytes", mem),
		zap.Float64("allocated_storage_bytes", inst.AllocatedStorageBytes))
	return inst, nil
}

func (p *Provider) maxConnections(ctx context.Context, group string) (string, error) {
	paginator := awsrds.NewDescribeDBParametersPaginator(p.rds, &awsrds.DescribeDBParametersInput{
		DBParameterGroupName: aws.String(group),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", describe("describe db parameters", err)
		}
		for _, param := range page.Parameters {
			if aws.ToString(param.ParameterName) == maxConnectionsParameter && param.ParameterValue != nil {
				return aws.ToString(param.ParameterValue), nil
			}
		}
	}
	return "", fmt.Errorf("parameter group %s: %w", group, ErrMissingParameter)
}

func (p *Provider) memory(ctx context.Context, class string) (float64, error) {
	instanceType := strings.TrimPrefix(class, "db.")
	out, err := p.ec2.DescribeInstanceTypes(ctx, &ec2.DescribeInstanceTypesInput{
		InstanceTypes: []ec2types.InstanceType{ec2types.InstanceType(instanceType)},
	})
	if err != nil {
		return 0, describe("describe instance type", err)
	}
	if len(out.InstanceTypes) == 0 || out.InstanceTypes[0].MemoryInfo == nil {
		return 0, fmt.Errorf("no memory information for instance type %s", instanceType)
	}
	return float64(aws.ToInt64(out.InstanceTypes[0].MemoryInfo.SizeInMiB)) * mib, nil
}

func describe(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s: %s: %w", op, apiErr.ErrorCode(), apiErr.ErrorMessage(), err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
