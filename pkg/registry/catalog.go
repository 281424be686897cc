package registry

import "fmt"

const (
	hackerTargetBase = "https://api.hackertarget.com"

	// DefaultGroupName is the group run when a request names no tools.
	DefaultGroupName = "basic"
)

// hackerTargetErrorMarkers are the bodies HackerTarget returns for rejected queries.
var hackerTargetErrorMarkers = []string{"error input invalid", "error check your search parameter"}

func hackerTarget(key, endpoint, description string) ToolSpec {
	return ToolSpec{
		Key:         key,
		Kind:        KindRemote,
		Description: description,
		Remote: &RemoteSpec{
			URLTemplate:  fmt.Sprintf("%s/%s/?q=", hackerTargetBase, endpoint),
			ErrorMarkers: hackerTargetErrorMarkers,
		},
	}
}

// webTool is a remote tool outside HackerTarget whose target goes where the
// URL template puts TargetPlaceholder.
func webTool(key, description, urlTemplate string, format Format) ToolSpec {
	return ToolSpec{
		Key:         key,
		Kind:        KindRemote,
		Description: description,
		Remote:      &RemoteSpec{URLTemplate: urlTemplate, Format: format},
	}
}

func localTool(key, description, command string, args ...string) ToolSpec {
	return ToolSpec{
		Key:         key,
		Kind:        KindLocal,
		Description: description,
		Local:       &LocalSpec{Command: command, Args: args},
	}
}

// BuiltinSpecs returns the built-in tool catalog.
func BuiltinSpecs() []ToolSpec {
	return []ToolSpec{
		hackerTarget("whois", "whois", "WHOIS registration record"),
		hackerTarget("dnslookup", "dnslookup", "DNS records (A, MX, NS, TXT...)"),
		hackerTarget("reversedns", "reversedns", "Reverse DNS for an IP"),
		hackerTarget("hostsearch", "hostsearch", "Subdomains and their addresses"),
		hackerTarget("findshareddns", "findshareddns", "Domains sharing the same name servers"),
		hackerTarget("zonetransfer", "zonetransfer", "Attempt an AXFR zone transfer"),
		hackerTarget("geoip", "geoip", "IP geolocation"),
		hackerTarget("reverseiplookup", "reverseiplookup", "Domains hosted on the same IP"),
		hackerTarget("aslookup", "aslookup", "Autonomous system lookup"),
		hackerTarget("httpheaders", "httpheaders", "HTTP response headers"),
		hackerTarget("pagelinks", "pagelinks", "Links extracted from the home page"),
		hackerTarget("mtr", "mtr", "MTR traceroute from the API host"),
		hackerTarget("nping", "nping", "TCP ping from the API host"),
		hackerTarget("subnetcalc", "subnetcalc", "Subnet calculator"),

		webTool("crtsh", "Subdomains from certificate transparency logs (crt.sh)",
			"https://crt.sh/?q=%25."+TargetPlaceholder+"&output=json", FormatCrtsh),
		webTool("cms", "CMS detection", "https://tools.prinsh.com/API/cms-scan.php?url="+TargetPlaceholder, FormatJSON),
		webTool("analyse", "Web technology fingerprint",
			"https://api.webtech.sh/api/v1/technologies?url="+TargetPlaceholder, FormatTechnologies),
		webTool("extract", "Email addresses found on the site",
			"https://tools.prinsh.com/API/email.php?url="+TargetPlaceholder, FormatEmails),
		{
			Key:         "methods",
			Kind:        KindRemote,
			Description: "HTTP methods allowed by the site (OPTIONS)",
			Remote: &RemoteSpec{
				URLTemplate: "https://" + TargetPlaceholder + "/",
				Method:      "OPTIONS",
				Format:      FormatAllowHeader,
			},
		},

		localTool("local_ping", "ICMP ping from this server", "ping", "-c", "4", TargetPlaceholder),
		localTool("local_whois", "whois client on this server", "whois", TargetPlaceholder),
		localTool("local_dig", "dig ANY query from this server", "dig", TargetPlaceholder, "ANY", "+noall", "+answer"),
		localTool("local_traceroute", "traceroute from this server", "traceroute", "-m", "20", TargetPlaceholder),
		localTool("nmap", "nmap fast scan of the top 100 ports", "nmap", "-F", TargetPlaceholder),
		localTool("rustscan", "rustscan full port sweep", "rustscan", "-a", TargetPlaceholder, "--ulimit", "5000"),
	}
}

// BuiltinGroups returns the built-in groups.
func BuiltinGroups() []Group {
	return []Group{
		{Name: DefaultGroupName, Keys: []string{"whois", "dnslookup", "hostsearch"}},
		{Name: "dns", Keys: []string{"dnslookup", "reversedns", "findshareddns", "zonetransfer"}},
		{Name: "network", Keys: []string{"geoip", "aslookup", "reverseiplookup", "mtr", "nping"}},
		{Name: "subdomains", Keys: []string{"hostsearch", "crtsh"}},
		{Name: "web", Keys: []string{"httpheaders", "pagelinks", "methods", "cms", "analyse", "extract"}},
		{Name: "local", Keys: []string{"local_ping", "local_whois", "local_dig", "local_traceroute", "nmap", "rustscan"}},
		{Name: "full", Keys: []string{
			"whois", "dnslookup", "reversedns", "hostsearch", "findshareddns", "zonetransfer", "geoip",
			"reverseiplookup", "aslookup", "httpheaders", "pagelinks", "mtr", "nping", "subnetcalc",
			"crtsh", "cms", "analyse", "extract", "methods",
		}},
	}
}

// Default returns the built-in registry.
func Default() *Registry {
	r, err := New(BuiltinSpecs(), BuiltinGroups(), DefaultGroupName)
	if err != nil {
		panic(fmt.Sprintf("registry: invalid built-in catalog: %v", err))
	}
	return r
}
