package glacier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/glacier"
	"github.com/aws/aws-sdk-go-v2/service/glacier/types"

	"github.com/coldvault/vaultup/internal/treehash"
)

// accountID "-" means the account owning the credentials, per the Glacier
// API convention.
const accountID = "-"

// AWSStore implements Store against the AWS Glacier service.
type AWSStore struct {
	client *glacier.Client
}

// NewAWSStore builds a Store using the default AWS credential chain. An
// empty region falls back to the environment/shared config.
func NewAWSStore(ctx context.Context, region string) (*AWSStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithHTTPClient(newHTTPClient()),
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &AWSStore{client: glacier.NewFromConfig(cfg)}, nil
}

// CreateSession initiates a multipart upload on the vault.
func (s *AWSStore) CreateSession(ctx context.Context, vault, description string, partSize int64) (string, error) {
	resp, err := s.client.InitiateMultipartUpload(ctx, &glacier.InitiateMultipartUploadInput{
		AccountId:          aws.String(accountID),
		VaultName:          aws.String(vault),
		ArchiveDescription: aws.String(description),
		PartSize:           aws.String(strconv.FormatInt(partSize, 10)),
	})
	if err != nil {
		return "", wrapNotFound(err, "failed to initiate multipart upload")
	}
	return aws.ToString(resp.UploadId), nil
}

// ListSessionParts drains the ListParts pagination and returns the full
// remote view of the session.
func (s *AWSStore) ListSessionParts(ctx context.Context, vault, sessionID string) (*SessionInfo, error) {
	info := &SessionInfo{
		SessionID: sessionID,
		VaultName: vault,
	}
	var marker *string
	for {
		resp, err := s.client.ListParts(ctx, &glacier.ListPartsInput{
			AccountId: aws.String(accountID),
			VaultName: aws.String(vault),
			UploadId:  aws.String(sessionID),
			Marker:    marker,
		})
		if err != nil {
			return nil, wrapNotFound(err, "failed to list uploaded parts")
		}

		info.Description = aws.ToString(resp.ArchiveDescription)
		info.PartSize = resp.PartSizeInBytes
		for _, p := range resp.Parts {
			start, end, err := parseRange(aws.ToString(p.RangeInBytes))
			if err != nil {
				return nil, fmt.Errorf("malformed part range from service: %w", err)
			}
			info.Parts = append(info.Parts, RemotePart{
				Range:    ByteRange{Start: start, End: end},
				Checksum: aws.ToString(p.SHA256TreeHash),
			})
		}

		if aws.ToString(resp.Marker) == "" {
			return info, nil
		}
		marker = resp.Marker
	}
}

// UploadPart sends one part and returns the service's tree hash for it.
// The locally computed checksum is sent along so the service can reject a
// corrupted body outright.
func (s *AWSStore) UploadPart(ctx context.Context, vault, sessionID string, r ByteRange, body []byte) (string, error) {
	checksum := treehash.Part(body).Hex()
	resp, err := s.client.UploadMultipartPart(ctx, &glacier.UploadMultipartPartInput{
		AccountId: aws.String(accountID),
		VaultName: aws.String(vault),
		UploadId:  aws.String(sessionID),
		Range:     aws.String(r.ContentRange()),
		Checksum:  aws.String(checksum),
		Body:      bytes.NewReader(body),
	})
	if err != nil {
		return "", wrapNotFound(err, fmt.Sprintf("failed to upload part %d-%d", r.Start, r.End))
	}
	return aws.ToString(resp.Checksum), nil
}

// CompleteSession finalizes the multipart upload.
func (s *AWSStore) CompleteSession(ctx context.Context, vault, sessionID string, totalSize int64, rootChecksum string) (*CommitResult, error) {
	resp, err := s.client.CompleteMultipartUpload(ctx, &glacier.CompleteMultipartUploadInput{
		AccountId:   aws.String(accountID),
		VaultName:   aws.String(vault),
		UploadId:    aws.String(sessionID),
		ArchiveSize: aws.String(strconv.FormatInt(totalSize, 10)),
		Checksum:    aws.String(rootChecksum),
	})
	if err != nil {
		return nil, wrapNotFound(err, "failed to complete multipart upload")
	}
	return &CommitResult{
		Checksum:  aws.ToString(resp.Checksum),
		Location:  aws.ToString(resp.Location),
		ArchiveID: aws.ToString(resp.ArchiveId),
	}, nil
}

// UploadWhole uploads a small archive in a single request.
func (s *AWSStore) UploadWhole(ctx context.Context, vault, description string, body []byte) (*CommitResult, error) {
	resp, err := s.client.UploadArchive(ctx, &glacier.UploadArchiveInput{
		AccountId:          aws.String(accountID),
		VaultName:          aws.String(vault),
		ArchiveDescription: aws.String(description),
		Checksum:           aws.String(treehash.Part(body).Hex()),
		Body:               bytes.NewReader(body),
	})
	if err != nil {
		return nil, wrapNotFound(err, "failed to upload archive")
	}
	return &CommitResult{
		Checksum:  aws.ToString(resp.Checksum),
		Location:  aws.ToString(resp.Location),
		ArchiveID: aws.ToString(resp.ArchiveId),
	}, nil
}

// AbortSession discards an in-progress multipart upload.
func (s *AWSStore) AbortSession(ctx context.Context, vault, sessionID string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &glacier.AbortMultipartUploadInput{
		AccountId: aws.String(accountID),
		VaultName: aws.String(vault),
		UploadId:  aws.String(sessionID),
	})
	if err != nil {
		return wrapNotFound(err, "failed to abort multipart upload")
	}
	return nil
}

// ListSessions drains ListMultipartUploads pagination.
func (s *AWSStore) ListSessions(ctx context.Context, vault string) ([]SessionSummary, error) {
	var sessions []SessionSummary
	var marker *string
	for {
		resp, err := s.client.ListMultipartUploads(ctx, &glacier.ListMultipartUploadsInput{
			AccountId: aws.String(accountID),
			VaultName: aws.String(vault),
			Marker:    marker,
		})
		if err != nil {
			return nil, wrapNotFound(err, "failed to list multipart uploads")
		}
		for _, u := range resp.UploadsList {
			sessions = append(sessions, SessionSummary{
				SessionID:   aws.ToString(u.MultipartUploadId),
				Description: aws.ToString(u.ArchiveDescription),
				PartSize:    u.PartSizeInBytes,
				CreatedAt:   aws.ToString(u.CreationDate),
			})
		}
		if aws.ToString(resp.Marker) == "" {
			return sessions, nil
		}
		marker = resp.Marker
	}
}

// DeleteArchive removes an archive from the vault.
func (s *AWSStore) DeleteArchive(ctx context.Context, vault, archiveID string) error {
	_, err := s.client.DeleteArchive(ctx, &glacier.DeleteArchiveInput{
		AccountId: aws.String(accountID),
		VaultName: aws.String(vault),
		ArchiveId: aws.String(archiveID),
	})
	if err != nil {
		return wrapNotFound(err, "failed to delete archive")
	}
	return nil
}

// wrapNotFound maps the service's ResourceNotFoundException onto
// ErrNotFound so callers can branch with errors.Is, and wraps everything
// else with context.
func wrapNotFound(err error, msg string) error {
	var rnf *types.ResourceNotFoundException
	if errors.As(err, &rnf) {
		return fmt.Errorf("%s: %w: %s", msg, ErrNotFound, aws.ToString(rnf.Message))
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// parseRange parses the service's "start-end" part range strings.
func parseRange(s string) (int64, int64, error) {
	var start, end int64
	if _, err := fmt.Sscanf(s, "%d-%d", &start, &end); err != nil {
		return 0, 0, fmt.Errorf("bad range %q: %w", s, err)
	}
	return start, end, nil
}
