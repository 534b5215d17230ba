package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var generateFlags struct {
	hosts    string
	org      string
	validity int
	keySize  int
	output   string
}

var certsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a self-signed certificate",
	Long: `Generate a self-signed TLS certificate and private key for testing.

The certificate covers the given hostnames and IP addresses as Subject
Alternative Names and is written next to its key with restrictive
permissions (0600 for the key).

Self-signed certificates are for development and testing only. For
production use certificates from a trusted CA.

Examples:
  # Certificate for localhost
  portunus certs generate --host localhost

  # Multiple SANs
  portunus certs generate --host "localhost,127.0.0.1,proxy.internal"

  # Custom parameters
  portunus certs generate --host proxy.internal --org "Acme" --validity 90 --output /etc/portunus/tls`,
	RunE: generateCertificate,
}

func init() {
	certsCmd.AddCommand(certsGenerateCmd)

	certsGenerateCmd.Flags().StringVar(&generateFlags.hosts, "host", "localhost", "comma-separated hostnames and IPs")
	certsGenerateCmd.Flags().StringVar(&generateFlags.org, "org", "Portunus", "organization name")
	certsGenerateCmd.Flags().IntVar(&generateFlags.validity, "validity", 365, "validity in days")
	certsGenerateCmd.Flags().IntVar(&generateFlags.keySize, "key-size", 2048, "RSA key size (2048, 3072, 4096)")
	certsGenerateCmd.Flags().StringVarP(&generateFlags.output, "output", "o", "certs", "output directory")
}

func generateCertificate(cmd *cobra.Command, args []string) error {
	switch generateFlags.keySize {
	case 2048, 3072, 4096:
	default:
		return fmt.Errorf("invalid key size: %d (must be 2048, 3072, or 4096)", generateFlags.keySize)
	}

	var (
		dnsNames    []string
		ipAddresses []net.IP
	)
	hosts := strings.Split(generateFlags.hosts, ",")
	for _, host := range hosts {
		host = strings.TrimSpace(host)
		if ip := net.ParseIP(host); ip != nil {
			ipAddresses = append(ipAddresses, ip)
		} else {
			dnsNames = append(dnsNames, host)
		}
	}

	fmt.Printf("Generating %d-bit RSA key and self-signed certificate...\n", generateFlags.keySize)
	privateKey, err := rsa.GenerateKey(rand.Reader, generateFlags.keySize)
	if err != nil {
		return fmt.Errorf("failed to generate private key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	notBefore := time.Now()
	notAfter := notBefore.AddDate(0, 0, generateFlags.validity)

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{generateFlags.org},
			CommonName:   strings.TrimSpace(hosts[0]),
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              dnsNames,
		IPAddresses:           ipAddresses,
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}

	if err := os.MkdirAll(generateFlags.output, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	certPath := filepath.Join(generateFlags.output, "cert.pem")
	if err := writePEM(certPath, "CERTIFICATE", derBytes, 0644); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}

	keyPath := filepath.Join(generateFlags.output, "key.pem")
	keyBytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return fmt.Errorf("failed to encode private key: %w", err)
	}
	if err := writePEM(keyPath, "PRIVATE KEY", keyBytes, 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	fmt.Println()
	fmt.Printf("✓ Certificate: %s\n", certPath)
	fmt.Printf("✓ Private key: %s\n", keyPath)
	if len(dnsNames) > 0 {
		fmt.Printf("  DNS names:    %s\n", strings.Join(dnsNames, ", "))
	}
	if len(ipAddresses) > 0 {
		ips := make([]string, len(ipAddresses))
		for i, ip := range ipAddresses {
			ips[i] = ip.String()
		}
		fmt.Printf("  IP addresses: %s\n", strings.Join(ips, ", "))
	}
	fmt.Printf("  Valid until:  %s\n", notAfter.Format("2006-01-02"))
	fmt.Println()

	fmt.Println("To serve TLS with this pair, add to your config.yaml:")
	fmt.Println("---")
	fmt.Println("server:")
	fmt.Println("  tls:")
	fmt.Println("    enabled: true")
	fmt.Printf("    cert_file: %q\n", certPath)
	fmt.Printf("    key_file: %q\n", keyPath)
	fmt.Println("    min_version: \"1.2\"")
	fmt.Println()
	fmt.Println("Self-signed certificates are for testing only; clients will not")
	fmt.Println("trust them without extra configuration.")

	return nil
}

func writePEM(path, blockType string, der []byte, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer f.Close()
	return pem.Encode(f, &pem.Block{Type: blockType, Bytes: der})
}
