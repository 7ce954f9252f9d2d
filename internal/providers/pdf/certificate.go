package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// CertificateData describes one approved verification for rendering.
type CertificateData struct {
	CertificateNumber string
	HolderName        string
	VerificationType  string
	OrganizationName  string
	ReviewedAt        string
	IssuedAt          string
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateCertificate(ctx context.Context, data CertificateData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(12, "Certificate of Verification", props.Text{
			Size:  22,
			Style: fontstyle.Bold,
			Align: align.Center,
			Top:   5,
		}),
	)

	m.AddRow(15,
		col.New(6).Add(
			text.New("Certificate number: "+data.CertificateNumber, props.Text{Top: 0, Size: 9}),
			text.New("Issued: "+data.IssuedAt, props.Text{Top: 4, Size: 9}),
		),
		col.New(6),
	)

	m.AddRow(15,
		text.NewCol(12, "This certifies that", props.Text{
			Size:  11,
			Align: align.Center,
			Top:   5,
		}),
	)
	m.AddRow(15,
		text.NewCol(12, data.HolderName, props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Center,
		}),
	)

	m.AddRow(30,
		col.New(12).Add(
			text.New("holds a verified credential of type "+data.VerificationType, props.Text{
				Size:  11,
				Align: align.Center,
				Top:   2,
			}),
			text.New("issued under the authority of "+data.OrganizationName, props.Text{
				Size:  11,
				Align: align.Center,
				Top:   8,
			}),
			text.New("approved on "+data.ReviewedAt, props.Text{
				Size:  10,
				Align: align.Center,
				Top:   16,
			}),
		),
	)

	m.AddRow(20,
		col.New(7),
		col.New(5).Add(
			text.New("Authorized reviewer", props.Text{Size: 9, Align: align.Center, Top: 10}),
		),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}
