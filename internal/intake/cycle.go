package intake

import (
	"context"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/arrivals-intake/constants"
	"github.com/joseph-ayodele/arrivals-intake/internal/common"
	"github.com/joseph-ayodele/arrivals-intake/internal/transform"
	"github.com/joseph-ayodele/arrivals-intake/internal/transport"
)

// RunCycle lists the watched directory once and processes every eligible file
// in listing order. A listing failure is returned; per-file failures are only
// recorded in the report. Cancellation is checked between files.
func (p *Pipeline) RunCycle(ctx context.Context, st State) (report CycleReport, err error) {
	report = CycleReport{CycleID: uuid.NewString(), StartedAt: p.now()}
	ctx = common.WithCycleID(ctx, report.CycleID)
	logger := p.logger.With("cycle_id", report.CycleID)
	defer func() { report.Duration = p.now().Sub(report.StartedAt) }()

	entries, err := p.store.List(ctx, p.watchedDir)
	if err != nil {
		logger.Error("poll failed", "dir", p.watchedDir, "error", err)
		return report, err
	}

	for _, e := range entries {
		if constants.IsDirMarker(e.Name) {
			continue
		}
		report.Listed++

		if err := ctx.Err(); err != nil {
			logger.Info("cycle interrupted", "remaining_from", e.Name)
			return report, err
		}

		eligible, reason := p.eligible(ctx, e, st.Seen)
		if !eligible {
			report.Skipped++
			logger.Debug("skipping entry", "file", e.Name, "reason", reason)
			continue
		}
		report.Eligible++

		res := p.processFile(ctx, e, st)
		p.route(ctx, &res, st.Seen)
		report.add(res)
	}

	logger.Info("cycle complete",
		"listed", report.Listed,
		"eligible", report.Eligible,
		"uploaded", report.Uploaded,
		"errored", report.Errored,
		"route_failed", report.RouteFailed,
	)
	return report, nil
}

func (p *Pipeline) eligible(ctx context.Context, e transport.Entry, seen DedupSet) (bool, string) {
	if e.IsDir {
		return false, "directory"
	}
	if !constants.HasSuffix(e.Name, p.suffixes) {
		return false, "suffix"
	}
	if seen == nil {
		return true, ""
	}
	ok, err := seen.Contains(ctx, e.Name)
	if err != nil {
		// Without a dedup answer the file is left for the next cycle.
		p.logger.Error("dedup lookup failed", "file", e.Name, "error", err)
		return false, "dedup_error"
	}
	if ok {
		return false, "already_uploaded"
	}
	return true, ""
}

func (p *Pipeline) processFile(ctx context.Context, e transport.Entry, st State) FileResult {
	res := FileResult{Name: e.Name, DiscoveredAt: p.now()}
	logger := p.logger.With("cycle_id", common.CycleIDFromContext(ctx), "file", e.Name)
	src := transport.Join(p.watchedDir, e.Name)

	rc, err := p.store.Open(ctx, src)
	if err != nil {
		logger.Error("open failed", "error", err)
		res.Outcome = constants.OutcomeAnyFailed
		res.Err = err
		return res
	}
	defer func() {
		if err := rc.Close(); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}()

	digest := xxhash.New()
	r := io.TeeReader(rc, digest)

	var parseErr, submitErr error
	for rec, err := range transform.Parse(e.Name, r) {
		if err != nil {
			parseErr = err
			break
		}
		res.Records++
		if _, err := p.client.Submit(ctx, rec, st.Token); err != nil {
			res.Failed++
			if submitErr == nil {
				submitErr = err
			}
			logger.Warn("record rejected", "row", res.Records, "error", err)
		}
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		logger.Warn("checksum read incomplete", "error", err)
	}
	res.Checksum = fmt.Sprintf("%016x", digest.Sum64())

	switch {
	case parseErr != nil:
		logger.Error("parse failed", "records", res.Records, "error", parseErr)
		res.Outcome = constants.OutcomeAnyFailed
		res.Err = parseErr
	case submitErr != nil:
		res.Outcome = constants.OutcomeAnyFailed
		res.Err = fmt.Errorf("%d of %d records rejected: %w", res.Failed, res.Records, submitErr)
	default:
		res.Outcome = constants.OutcomeAllUploaded
	}
	return res
}

// route moves the file out of the watched directory. A fully uploaded file
// is marked before the move so a failed move cannot cause a resubmission.
func (p *Pipeline) route(ctx context.Context, res *FileResult, seen DedupSet) {
	cycleID := common.CycleIDFromContext(ctx)
	logger := p.logger.With("cycle_id", cycleID, "file", res.Name)

	dstDir := p.ErrorsPath()
	if res.Outcome == constants.OutcomeAllUploaded {
		dstDir = p.UploadedPath()
		if seen != nil {
			mark := Mark{Name: res.Name, Checksum: res.Checksum, Records: res.Records, CycleID: cycleID, At: p.now()}
			if err := seen.Add(ctx, mark); err != nil {
				logger.Error("dedup mark failed", "error", err)
			}
		}
	}

	src := transport.Join(p.watchedDir, res.Name)
	dst := transport.Join(dstDir, res.Name)
	if err := p.store.Move(ctx, src, dst); err != nil {
		res.RouteErr = err
		logger.Error("move failed; file left in place", "destination", dst, "outcome", res.Outcome, "error", err)
		return
	}
	res.Destination = dst
	logger.Info("file routed", "destination", dst, "outcome", res.Outcome, "records", res.Records, "failed", res.Failed)
}
