package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/raskyld/kfi"
	"gopkg.in/yaml.v3"
)

// InfoView is the printable form of a discovery record.
type InfoView struct {
	Provider        string `json:"provider" yaml:"provider"`
	ProviderVersion string `json:"provider_version" yaml:"provider_version"`
	Fabric          string `json:"fabric" yaml:"fabric"`
	Domain          string `json:"domain" yaml:"domain"`
	Protocol        string `json:"protocol" yaml:"protocol"`
	ProtocolVersion uint32 `json:"protocol_version" yaml:"protocol_version"`
	Caps            string `json:"caps" yaml:"caps"`
	AddrFormat      string `json:"addr_format" yaml:"addr_format"`
	SrcAddr         string `json:"src_addr,omitempty" yaml:"src_addr,omitempty"`
	DestAddr        string `json:"dest_addr,omitempty" yaml:"dest_addr,omitempty"`
	MaxMsgSize      uint64 `json:"max_msg_size" yaml:"max_msg_size"`
	Threading       string `json:"threading" yaml:"threading"`
	AVType          string `json:"av_type" yaml:"av_type"`
}

// ProviderView is the printable form of a registry entry.
type ProviderView struct {
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version" yaml:"version"`
	CanDiscover bool   `json:"discover" yaml:"discover"`
	CanOpen     bool   `json:"fabric" yaml:"fabric"`
}

func versionString(v uint32) string {
	return fmt.Sprintf("%d.%d", kfi.MajorVersion(v), kfi.MinorVersion(v))
}

func viewInfos(chain *kfi.Chain) []InfoView {
	views := make([]InfoView, 0, chain.Len())
	for _, info := range chain.All() {
		views = append(views, InfoView{
			Provider:        info.FabricAttr.ProvName,
			ProviderVersion: versionString(info.FabricAttr.ProvVersion),
			Fabric:          info.FabricAttr.Name,
			Domain:          info.DomainAttr.Name,
			Protocol:        info.EpAttr.Protocol.String(),
			ProtocolVersion: info.EpAttr.ProtocolVersion,
			Caps:            info.Caps.String(),
			AddrFormat:      info.AddrFormat.String(),
			SrcAddr:         kfi.FormatAddr(info.AddrFormat, info.SrcAddr),
			DestAddr:        kfi.FormatAddr(info.AddrFormat, info.DestAddr),
			MaxMsgSize:      info.EpAttr.MaxMsgSize,
			Threading:       info.DomainAttr.Threading.String(),
			AVType:          info.DomainAttr.AVType.String(),
		})
	}
	return views
}

func viewProviders(infos []kfi.ProviderInfo) []ProviderView {
	views := make([]ProviderView, 0, len(infos))
	for _, info := range infos {
		views = append(views, ProviderView{
			Name:        info.Name,
			Version:     versionString(info.Version),
			CanDiscover: info.CanDiscover,
			CanOpen:     info.CanOpen,
		})
	}
	return views
}

func render(w io.Writer, format string, v any) error {
	switch format {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOutput, format)
	}
}
