package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"go.uber.org/zap"

	"github.com/fruitsalade/explorer/pkg/backend"
	"github.com/fruitsalade/explorer/pkg/models"
	"github.com/fruitsalade/explorer/pkg/pathkey"
	"github.com/fruitsalade/explorer/pkg/protocol"
)

// progressReader reports the share of total bytes read so far. Reports are
// only made when the percentage changes.
type progressReader struct {
	r        io.Reader
	total    int64
	read     int64
	last     int
	progress backend.ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.total > 0 {
		pct := int(p.read * 100 / p.total)
		// 100 is reserved for the server's acknowledgement.
		if pct > 99 {
			pct = 99
		}
		if pct > p.last {
			p.last = pct
			p.progress.Report(pct)
		}
	}
	return n, err
}

// Upload streams f as multipart/form-data to POST /fs/upload. Progress is
// derived from the bytes actually written to the request body; 100 is
// reported once the server acknowledges.
func (c *Client) Upload(ctx context.Context, path string, f backend.File, progress backend.ProgressFunc) (models.FileRecord, error) {
	p := pathkey.Normalize(path)
	fp := pathkey.FilePath(p, f.Name)
	fail := func(err error) (models.FileRecord, error) {
		return models.FileRecord{}, backend.Fail(backend.KindUpload, fp, err)
	}
	if err := backend.ValidateName(f.Name); err != nil {
		return fail(err)
	}

	body := f.Body
	if body == nil {
		body = http.NoBody
	}
	counted := &progressReader{r: body, total: f.Size, progress: progress}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := func() error {
			if err := mw.WriteField(protocol.FieldPath, p); err != nil {
				return err
			}
			part, err := mw.CreateFormFile(protocol.FieldFile, f.Name)
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, counted); err != nil {
				return fmt.Errorf("read %s: %w", f.Name, err)
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/fs/upload", nil, pr)
	if err != nil {
		pr.Close()
		<-done
		return fail(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	progress.Report(0)
	resp, err := c.send(req, backend.KindUpload, fp)
	pr.Close()
	<-done
	if err != nil {
		return models.FileRecord{}, err
	}
	defer resp.Body.Close()

	var ack protocol.AckResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil && err != io.EOF {
		return fail(fmt.Errorf("decode response: %w", err))
	}

	progress.Report(100)
	c.logger.Debug("Uploaded file", zap.String("path", fp), zap.Int64("bytes", counted.read))
	return c.record(ack, f.Name, counted.read), nil
}
