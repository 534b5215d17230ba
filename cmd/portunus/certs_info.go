package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"fulcrum-hq/portunus/pkg/cli"
	securitytls "fulcrum-hq/portunus/pkg/security/tls"
)

var infoFlags struct {
	format string
}

var certsInfoCmd = &cobra.Command{
	Use:   "info [cert-file]",
	Short: "Display certificate details",
	Long: `Display the subject, issuer, validity window, SANs, and algorithms
of a PEM certificate.

Examples:
  # Human-readable output
  portunus certs info server.crt

  # JSON for scripting
  portunus certs info --format json server.crt`,
	Args: cobra.ExactArgs(1),
	RunE: displayCertInfo,
}

func init() {
	certsCmd.AddCommand(certsInfoCmd)

	certsInfoCmd.Flags().StringVar(&infoFlags.format, "format", "text", "output format: text, json")
}

func displayCertInfo(cmd *cobra.Command, args []string) error {
	cert, err := loadCertificate(args[0])
	if err != nil {
		return err
	}

	info := securitytls.ExtractCertificateInfo(cert)

	if infoFlags.format == "json" {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, info)
	}

	fmt.Printf("Certificate: %s\n\n", args[0])
	fmt.Printf("Subject:     %s\n", info.Subject)
	fmt.Printf("Issuer:      %s\n", info.Issuer)
	fmt.Printf("Serial:      %s\n", info.SerialNumber)
	fmt.Println()
	fmt.Println("Validity:")
	fmt.Printf("  Not Before: %s\n", info.NotBefore.Format(time.RFC3339))
	fmt.Printf("  Not After:  %s\n", info.NotAfter.Format(time.RFC3339))
	if days, warning := securitytls.CheckCertificateExpiration(cert); warning != "" {
		fmt.Printf("  ⚠ expires in %d days\n", days)
	}
	if len(info.DNSNames) > 0 {
		fmt.Println()
		fmt.Printf("SANs (DNS):  %v\n", info.DNSNames)
	}
	if len(info.IPAddresses) > 0 {
		fmt.Printf("SANs (IP):   %v\n", info.IPAddresses)
	}
	fmt.Println()
	fmt.Printf("Signature:   %s\n", info.SignatureAlgorithm)
	fmt.Printf("Public Key:  %s\n", info.PublicKeyAlgorithm)

	return nil
}
