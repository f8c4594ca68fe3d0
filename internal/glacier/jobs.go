package glacier

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glacier"
	"github.com/aws/aws-sdk-go-v2/service/glacier/types"
)

// JobStatus is the observable state of a retrieval job.
type JobStatus struct {
	JobID         string
	Action        string
	StatusCode    string
	StatusMessage string
	Completed     bool
	ArchiveSize   int64
	InventorySize int64
	TreeHash      string
}

// Succeeded reports whether the job completed successfully.
func (j *JobStatus) Succeeded() bool {
	return j.Completed && j.StatusCode == string(types.StatusCodeSucceeded)
}

// JobStore is the retrieval-job side of the vault service: inventory and
// archive retrievals are asynchronous jobs whose output is fetched once
// they complete.
type JobStore interface {
	// InitiateInventoryJob starts an inventory retrieval. Format is
	// "JSON" or "CSV".
	InitiateInventoryJob(ctx context.Context, vault, format, description string) (string, error)

	// InitiateArchiveJob starts an archive retrieval for one archive id.
	InitiateArchiveJob(ctx context.Context, vault, archiveID, description, tier string) (string, error)

	// DescribeJob reports a job's current status.
	DescribeJob(ctx context.Context, vault, jobID string) (*JobStatus, error)

	// GetJobOutput streams a completed job's output. A non-nil byte range
	// fetches just that slice, for chunked archive downloads. The second
	// return is the service-reported tree hash checksum for the returned
	// bytes, when the range is tree-hash aligned.
	GetJobOutput(ctx context.Context, vault, jobID string, r *ByteRange) (io.ReadCloser, string, error)
}

// InitiateInventoryJob starts an inventory retrieval job.
func (s *AWSStore) InitiateInventoryJob(ctx context.Context, vault, format, description string) (string, error) {
	params := &types.JobParameters{
		Type:   aws.String("inventory-retrieval"),
		Format: aws.String(format),
	}
	if description != "" {
		params.Description = aws.String(description)
	}
	return s.initiateJob(ctx, vault, params)
}

// InitiateArchiveJob starts an archive retrieval job.
func (s *AWSStore) InitiateArchiveJob(ctx context.Context, vault, archiveID, description, tier string) (string, error) {
	params := &types.JobParameters{
		Type:      aws.String("archive-retrieval"),
		ArchiveId: aws.String(archiveID),
	}
	if description != "" {
		params.Description = aws.String(description)
	}
	if tier != "" {
		params.Tier = aws.String(tier)
	}
	return s.initiateJob(ctx, vault, params)
}

func (s *AWSStore) initiateJob(ctx context.Context, vault string, params *types.JobParameters) (string, error) {
	resp, err := s.client.InitiateJob(ctx, &glacier.InitiateJobInput{
		AccountId:     aws.String(accountID),
		VaultName:     aws.String(vault),
		JobParameters: params,
	})
	if err != nil {
		return "", wrapNotFound(err, "failed to initiate job")
	}
	return aws.ToString(resp.JobId), nil
}

// DescribeJob reports the current status of a retrieval job.
func (s *AWSStore) DescribeJob(ctx context.Context, vault, jobID string) (*JobStatus, error) {
	resp, err := s.client.DescribeJob(ctx, &glacier.DescribeJobInput{
		AccountId: aws.String(accountID),
		VaultName: aws.String(vault),
		JobId:     aws.String(jobID),
	})
	if err != nil {
		return nil, wrapNotFound(err, "failed to describe job")
	}
	return &JobStatus{
		JobID:         aws.ToString(resp.JobId),
		Action:        string(resp.Action),
		StatusCode:    string(resp.StatusCode),
		StatusMessage: aws.ToString(resp.StatusMessage),
		Completed:     resp.Completed,
		ArchiveSize:   aws.ToInt64(resp.ArchiveSizeInBytes),
		InventorySize: aws.ToInt64(resp.InventorySizeInBytes),
		TreeHash:      aws.ToString(resp.SHA256TreeHash),
	}, nil
}

// GetJobOutput streams a completed job's output, optionally limited to a
// byte range.
func (s *AWSStore) GetJobOutput(ctx context.Context, vault, jobID string, r *ByteRange) (io.ReadCloser, string, error) {
	input := &glacier.GetJobOutputInput{
		AccountId: aws.String(accountID),
		VaultName: aws.String(vault),
		JobId:     aws.String(jobID),
	}
	if r != nil {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-%d", r.Start, r.End))
	}
	resp, err := s.client.GetJobOutput(ctx, input)
	if err != nil {
		return nil, "", wrapNotFound(err, "failed to get job output")
	}
	return resp.Body, aws.ToString(resp.Checksum), nil
}
