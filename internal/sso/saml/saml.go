// Package saml implementa el lado SP de SAML 2.0 sobre gosaml2.
// Solo soportamos el binding HTTP-Redirect para el AuthnRequest y
// HTTP-POST para la respuesta; las requests no se firman.
package saml

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"
)

type Config struct {
	EntryPoint  string // SSO URL del IdP
	IdPIssuer   string // entityID del IdP
	CertPEM     string // cert de firma del IdP (PEM)
	SPIssuer    string // nuestro entityID
	CallbackURL string // Assertion Consumer Service URL
}

type SP struct {
	sp *saml2.SAMLServiceProvider
}

// Assertion es la identidad extraída de una respuesta SAML validada.
type Assertion struct {
	NameID     string
	Email      string
	Name       string
	Attributes map[string]string
}

func New(cfg Config) (*SP, error) {
	if cfg.EntryPoint == "" || cfg.CertPEM == "" {
		return nil, errors.New("saml: entry_point y cert del IdP requeridos")
	}
	certStore := &dsig.MemoryX509CertificateStore{}
	rest := []byte(cfg.CertPEM)
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("saml cert: %w", err)
		}
		certStore.Roots = append(certStore.Roots, cert)
	}
	if len(certStore.Roots) == 0 {
		return nil, errors.New("saml: cert PEM sin bloques válidos")
	}

	sp := &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      cfg.EntryPoint,
		IdentityProviderIssuer:      cfg.IdPIssuer,
		ServiceProviderIssuer:       cfg.SPIssuer,
		AssertionConsumerServiceURL: cfg.CallbackURL,
		AudienceURI:                 cfg.SPIssuer,
		IDPCertificateStore:         certStore,
		SignAuthnRequests:           false,
	}
	return &SP{sp: sp}, nil
}

// AuthURL construye la URL de redirect al IdP; state viaja como RelayState.
func (s *SP) AuthURL(state string) (string, error) {
	u, err := s.sp.BuildAuthURL(state)
	if err != nil {
		return "", fmt.Errorf("saml auth url: %w", err)
	}
	return u, nil
}

// Los IdPs no se ponen de acuerdo en los nombres de atributos; probamos
// los habituales (Okta, Entra ID, los URIs OID de eduPerson).
var emailAttrs = []string{
	"email", "Email", "mail",
	"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress",
	"urn:oid:0.9.2342.19200300.100.1.3",
}

var nameAttrs = []string{
	"displayName", "name", "cn",
	"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/name",
	"urn:oid:2.16.840.1.113730.3.1.241",
}

// ParseResponse valida la respuesta SAML (base64, tal y como llega en el
// form POST) y extrae la identidad.
func (s *SP) ParseResponse(samlResponseB64 string) (*Assertion, error) {
	info, err := s.sp.RetrieveAssertionInfo(samlResponseB64)
	if err != nil {
		return nil, fmt.Errorf("saml assertion: %w", err)
	}
	if wi := info.WarningInfo; wi != nil {
		if wi.InvalidTime {
			return nil, errors.New("saml: assertion fuera de ventana temporal")
		}
		if wi.NotInAudience {
			return nil, errors.New("saml: audience no coincide")
		}
	}

	out := &Assertion{
		NameID:     info.NameID,
		Attributes: make(map[string]string),
	}
	for _, attr := range info.Values {
		if len(attr.Values) == 0 {
			continue
		}
		out.Attributes[attr.Name] = attr.Values[0].Value
	}
	out.Email = firstAttr(out.Attributes, emailAttrs)
	out.Name = firstAttr(out.Attributes, nameAttrs)
	if out.Email == "" && looksLikeEmail(info.NameID) {
		out.Email = info.NameID
	}
	if out.NameID == "" {
		return nil, errors.New("saml: assertion sin NameID")
	}
	return out, nil
}

func firstAttr(attrs map[string]string, names []string) string {
	for _, n := range names {
		if v := attrs[n]; v != "" {
			return v
		}
	}
	return ""
}

func looksLikeEmail(s string) bool {
	at := -1
	for i, r := range s {
		if r == '@' {
			if at >= 0 {
				return false
			}
			at = i
		}
	}
	return at > 0 && at < len(s)-1
}
