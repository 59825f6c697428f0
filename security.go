package pe

import (
	"crypto/x509"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"reflect"

	"go.mozilla.org/pkcs7"
)

// WIN_CERTIFICATE Revision values.
const (
	WinCertRevision1_0 = 0x0100
	WinCertRevision2_0 = 0x0200
)

// WIN_CERTIFICATE CertificateType values.
const (
	WinCertTypeX509           = 0x0001
	WinCertTypePKCSSignedData = 0x0002
	WinCertTypeReserved1      = 0x0003
	WinCertTypeTSStackSigned  = 0x0004
)

// ErrSecurityDataDirInvalid is reported when a WIN_CERTIFICATE entry's
// declared length is shorter than its 8-byte header or runs past the end
// of the file.
var ErrSecurityDataDirInvalid = errors.New("invalid certificate header in security directory")

// WinCertificate is the WIN_CERTIFICATE header preceding each attribute
// certificate entry.
type WinCertificate struct {
	Length          uint32 `json:"length"`
	Revision        uint16 `json:"revision"`
	CertificateType uint16 `json:"certificate_type"`
}

// CertInfo is the subset of an X.509 certificate's fields worth surfacing
// for a signer without re-exposing the whole x509.Certificate.
type CertInfo struct {
	Issuer             string                   `json:"issuer"`
	Subject            string                   `json:"subject"`
	NotBefore          string                   `json:"not_before"`
	NotAfter           string                   `json:"not_after"`
	SerialNumber       string                   `json:"serial_number"`
	SignatureAlgorithm x509.SignatureAlgorithm  `json:"signature_algorithm"`
	PublicKeyAlgorithm x509.PublicKeyAlgorithm  `json:"public_key_algorithm"`
}

// CertificateEntry is one WIN_CERTIFICATE entry from the attribute
// certificate table: its header, the raw PKCS#7 blob, and — when parseable
// — the signer's certificate info. This library never verifies the
// signature chain; it only inspects structure.
type CertificateEntry struct {
	Header WinCertificate `json:"header"`
	Raw    []byte         `json:"-"`
	Info   CertInfo       `json:"info"`
	Signed bool           `json:"signed"`
}

// parseSecurityDirectory walks the attribute certificate table. Unlike
// every other data directory, the Certificate Table entry's "virtual
// address" field is actually a plain file offset, per §4.9, since
// Authenticode data is never mapped into memory. Entries are 8-byte
// aligned: the next one starts at Length rounded up to a multiple of 8
// from the current entry's start.
func (img *Image) parseSecurityDirectory(rva, size uint32) error {
	certHeader := WinCertificate{}
	certSize := uint32(binary.Size(certHeader))

	fileOffset := rva
	end := fileOffset + size

	var entries []CertificateEntry
	var invalid error
	for fileOffset < end {
		if err := img.structUnpack(&certHeader, fileOffset, certSize); err != nil {
			break
		}
		if certHeader.Length < certSize || fileOffset+certHeader.Length > img.size {
			invalid = ErrSecurityDataDirInvalid
			break
		}

		certContent := img.data[fileOffset+certSize : fileOffset+certHeader.Length]
		entry := CertificateEntry{Header: certHeader, Raw: certContent}

		if p, err := pkcs7.Parse(certContent); err == nil {
			entry.Signed = true
			entry.Info = certInfoFromPKCS7(p)
		}

		entries = append(entries, entry)

		nextOffset := fileOffset + ((certHeader.Length+8-1)/8)*8
		if nextOffset <= fileOffset {
			break
		}
		fileOffset = nextOffset
	}

	img.certificates = entries
	img.hasSecurity = len(entries) > 0
	return invalid
}

// certInfoFromPKCS7 extracts the signer's own certificate (matched by
// serial number against the SignerInfo) from the PKCS#7 structure.
func certInfoFromPKCS7(p *pkcs7.PKCS7) CertInfo {
	info := CertInfo{}
	if len(p.Signers) == 0 {
		return info
	}
	serialNumber := p.Signers[0].IssuerAndSerialNumber.SerialNumber
	for _, cert := range p.Certificates {
		if !reflect.DeepEqual(cert.SerialNumber, serialNumber) {
			continue
		}

		info.SerialNumber = hex.EncodeToString(cert.SerialNumber.Bytes())
		info.PublicKeyAlgorithm = cert.PublicKeyAlgorithm
		info.SignatureAlgorithm = cert.SignatureAlgorithm
		info.NotBefore = cert.NotBefore.String()
		info.NotAfter = cert.NotAfter.String()

		if len(cert.Issuer.Country) > 0 {
			info.Issuer = cert.Issuer.Country[0]
		}
		if len(cert.Issuer.Province) > 0 {
			info.Issuer += ", " + cert.Issuer.Province[0]
		}
		if len(cert.Issuer.Locality) > 0 {
			info.Issuer += ", " + cert.Issuer.Locality[0]
		}
		info.Issuer += ", " + cert.Issuer.CommonName

		if len(cert.Subject.Country) > 0 {
			info.Subject = cert.Subject.Country[0]
		}
		if len(cert.Subject.Province) > 0 {
			info.Subject += ", " + cert.Subject.Province[0]
		}
		if len(cert.Subject.Locality) > 0 {
			info.Subject += ", " + cert.Subject.Locality[0]
		}
		if len(cert.Subject.Organization) > 0 {
			info.Subject += ", " + cert.Subject.Organization[0]
		}
		info.Subject += ", " + cert.Subject.CommonName
		break
	}
	return info
}
