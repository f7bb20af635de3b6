package shared

import (
	"net/rpc"

	"github.com/hashicorp/go-plugin"
)

// Scanner is the contract every scanner plugin implements. The plugin
// scans TargetPath and writes a SARIF report to ResultsPath; the core
// is responsible for parsing the report.
type Scanner interface {
	Scan(args ScannerScanRequest) (ScannerScanResponse, error)
}

// ScannerScanRequest represents a single scan request.
type ScannerScanRequest struct {
	TargetPath     string   // Path to the file or folder to scan
	ResultsPath    string   // Path to save the SARIF results of the scan
	ConfigPath     string   // Path to the configuration file for the scanner
	AdditionalArgs []string // Additional arguments for the scanner binary
}

type ScannerScanResponse struct {
	ResultsPath string
}

type ScannerRPCClient struct{ client *rpc.Client }

func (g *ScannerRPCClient) Scan(req ScannerScanRequest) (ScannerScanResponse, error) {
	var resp ScannerScanResponse
	if err := g.client.Call("Plugin.Scan", req, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

type ScannerRPCServer struct {
	Impl Scanner
}

func (s *ScannerRPCServer) Scan(args ScannerScanRequest, resp *ScannerScanResponse) error {
	var err error
	*resp, err = s.Impl.Scan(args)
	return err
}

type ScannerPlugin struct {
	Impl Scanner
}

func (p *ScannerPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &ScannerRPCServer{Impl: p.Impl}, nil
}

func (ScannerPlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &ScannerRPCClient{client: c}, nil
}
