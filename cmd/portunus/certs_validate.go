package main

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	securitytls "fulcrum-hq/portunus/pkg/security/tls"
)

var certsValidateFlags struct {
	certFile string
	keyFile  string
	caFile   string
}

var certsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a certificate and key",
	Long: `Validate a TLS certificate before putting it in front of the proxy.

Checks performed:
  - certificate and key pair match (with --key)
  - certificate chains to the given CA (with --ca)
  - certificate is inside its validity window
  - warning when fewer than 30 days remain

Examples:
  # Certificate and key match
  portunus certs validate --cert server.crt --key server.key

  # Chain validation against a private CA
  portunus certs validate --cert server.crt --ca ca.pem`,
	RunE: validateCertificate,
}

func init() {
	certsCmd.AddCommand(certsValidateCmd)

	certsValidateCmd.Flags().StringVar(&certsValidateFlags.certFile, "cert", "", "certificate file (required)")
	certsValidateCmd.Flags().StringVar(&certsValidateFlags.keyFile, "key", "", "private key file")
	certsValidateCmd.Flags().StringVar(&certsValidateFlags.caFile, "ca", "", "CA certificate file")

	_ = certsValidateCmd.MarkFlagRequired("cert")
}

func validateCertificate(cmd *cobra.Command, args []string) error {
	fmt.Printf("Validating certificate: %s\n\n", certsValidateFlags.certFile)

	cert, err := loadCertificate(certsValidateFlags.certFile)
	if err != nil {
		return err
	}

	if certsValidateFlags.keyFile != "" {
		if _, err := tls.LoadX509KeyPair(certsValidateFlags.certFile, certsValidateFlags.keyFile); err != nil {
			fmt.Println("✗ Certificate and key do NOT match")
			return err
		}
		fmt.Println("✓ Certificate and key match")
	}

	if certsValidateFlags.caFile != "" {
		caPEM, err := os.ReadFile(certsValidateFlags.caFile)
		if err != nil {
			return fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caPEM) {
			return fmt.Errorf("failed to parse CA certificate")
		}
		if err := securitytls.ValidateCertificateChain(cert, caPool); err != nil {
			fmt.Println("✗ Certificate chain invalid")
			return err
		}
		fmt.Println("✓ Certificate chain valid")
	}

	if err := securitytls.ValidateX509Certificate(cert); err != nil {
		fmt.Printf("✗ %v\n", err)
		return err
	}
	fmt.Printf("✓ Certificate valid until %s\n", cert.NotAfter.Format("2006-01-02"))

	if days, warning := securitytls.CheckCertificateExpiration(cert); warning != "" {
		fmt.Printf("⚠ Certificate expires in %d days\n", days)
	}

	info := securitytls.ExtractCertificateInfo(cert)
	fmt.Println("\nCertificate Details:")
	fmt.Printf("  Subject:     %s\n", info.Subject)
	fmt.Printf("  Issuer:      %s\n", info.Issuer)
	fmt.Printf("  Serial:      %s\n", info.SerialNumber)
	fmt.Printf("  Valid From:  %s\n", info.NotBefore.Format(time.RFC3339))
	fmt.Printf("  Valid Until: %s\n", info.NotAfter.Format(time.RFC3339))
	if len(info.DNSNames) > 0 {
		fmt.Printf("  SANs (DNS):  %v\n", info.DNSNames)
	}
	if len(info.IPAddresses) > 0 {
		fmt.Printf("  SANs (IP):   %v\n", info.IPAddresses)
	}

	return nil
}

// loadCertificate reads the first PEM certificate block from a file.
func loadCertificate(path string) (*x509.Certificate, error) {
	certPEM, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, fmt.Errorf("failed to parse certificate PEM")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}
