package report

import (
	"fmt"
	"strings"
	"time"
)

const (
	InternESDefaultIndex   = "90037930-aafc-11ec-acce-2d961187411f"
	InternESBaseURL        = "https://es.intern.aptosdev.com"
	InternGrafanaBaseURL   = "https://o11y.aptosdev.com/grafana/d/overview/overview?orgId=1&refresh=10s&var-Datasource=Remote%20Prometheus%20Intern"
	DevinfraESDefaultIndex = "d0bc5e20-badc-11ec-9a50-89b84ac337af"
	DevinfraESBaseURL      = "https://es.devinfra.aptosdev.com"
	DevinfraGrafanaBaseURL = "https://o11y.aptosdev.com/grafana/d/overview/overview?orgId=1&refresh=10s&var-Datasource=Remote%20Prometheus%20Devinfra"

	humioNamespaceVar = "$FORGE_NAMESPACE"
	// HumioLogsLink is a saved search; humioNamespaceVar marks the namespace.
	HumioLogsLink = "https://cloud.us.humio.com/k8s/search?query=%24forgeLogs%28validator_insta" +
		"nce%3D%2A%29%20%7C%20$FORGE_NAMESPACE%20&live=false&start=1661893461000&en" +
		"d=1661894266000&widgetType=list-view&columns=%5B%7B%22type%22%3A%22field%2" +
		"2%2C%22fieldName%22%3A%22%40timestamp%22%2C%22format%22%3A%22timestamp%22%" +
		"2C%22width%22%3A180%7D%2C%7B%22type%22%3A%22field%22%2C%22fieldName%22%3A%" +
		"22level%22%2C%22format%22%3A%22text%22%2C%22width%22%3A54%7D%2C%7B%22type%" +
		"22%3A%22link%22%2C%22openInNewBrowserTab%22%3Atrue%2C%22style%22%3A%22butto" +
		"n%22%2C%22hrefTemplate%22%3A%22https%3A%2F%2Fgithub.com%2Faptos-labs%2Fapt" +
		"os-core%2Fpull%2F%7B%7Bfields%5B%5C%22github_pr%5C%22%5D%7D%7D%22%2C%22tex" +
		"tTemplate%22%3A%22%7B%7Bfields%5B%5C%22github_pr%5C%22%5D%7D%7D%22%2C%22he" +
		"ader%22%3A%22Forge%20PR%22%2C%22width%22%3A79%7D%2C%7B%22type%22%3A%22fiel" +
		"d%22%2C%22fieldName%22%3A%22k8s.namespace%22%2C%22format%22%3A%22text%22%2" +
		"C%22width%22%3A104%7D%2C%7B%22type%22%3A%22field%22%2C%22fieldName%22%3A%2" +
		"2k8s.pod_name%22%2C%22format%22%3A%22text%22%2C%22width%22%3A126%7D%2C%7B%" +
		"22type%22%3A%22field%22%2C%22fieldName%22%3A%22k8s.container_name%22%2C%22" +
		"format%22%3A%22text%22%2C%22width%22%3A85%7D%2C%7B%22type%22%3A%22field%22" +
		"%2C%22fieldName%22%3A%22message%22%2C%22format%22%3A%22text%22%7D%5D&newes" +
		"tAtBottom=true&showOnlyFirstLine=false"

	validatorHostname = "aptos-node-0-validator-0"
	esTimeLayout      = "2006-01-02T15:04:05.000Z"
)

// TimeFilter is either a live window or a fixed range.
type TimeFilter struct {
	Live       bool
	Start, End time.Time
}

// Live follows the last 15 minutes.
func Live() TimeFilter {
	return TimeFilter{Live: true}
}

// Range covers start to end.
func Range(start, end time.Time) TimeFilter {
	return TimeFilter{Start: start, End: end}
}

// DashboardLink links the Grafana overview for a namespace.
func DashboardLink(cluster, namespace, chain string, tf TimeFilter) string {
	var filter string
	if tf.Live {
		filter = "&refresh=10s&from=now-15m&to=now"
	} else {
		filter = fmt.Sprintf("&from=%d&to=%d", tf.Start.Unix()*1000, tf.End.Unix()*1000)
	}
	base := InternGrafanaBaseURL
	if strings.Contains(cluster, "forge") {
		base = DevinfraGrafanaBaseURL
	}
	return fmt.Sprintf("%s&var-namespace=%s&var-chain_name=%s%s", base, namespace, chain, filter)
}

// HumioLink links the saved log search for a namespace.
func HumioLink(namespace string) string {
	return strings.ReplaceAll(HumioLogsLink, humioNamespaceVar, namespace)
}

func phraseFilter(index, key, value string) string {
	return fmt.Sprintf("('$state':(store:appState),meta:(alias:!n,disabled:!f,index:'%s',key:%s,negate:!f,params:(query:%s),type:phrase),query:(match_phrase:(%s:%s)))",
		index, key, value, key, value)
}

// ValidatorLogsLink links OpenSearch logs of the first validator.
func ValidatorLogsLink(namespace, chain string, tf TimeFilter) string {
	base, index := InternESBaseURL, InternESDefaultIndex
	if strings.Contains(chain, "forge") {
		base, index = DevinfraESBaseURL, DevinfraESDefaultIndex
	}

	var timeFilter string
	if tf.Live {
		timeFilter = "refreshInterval:(pause:!f,value:10000),time:(from:now-15m,to:now)"
	} else {
		timeFilter = fmt.Sprintf("refreshInterval:(pause:!t,value:0),time:(from:'%s',to:'%s')",
			tf.Start.UTC().Format(esTimeLayout), tf.End.UTC().Format(esTimeLayout))
	}

	filters := strings.Join([]string{
		phraseFilter(index, "chain_name", chain),
		phraseFilter(index, "namespace", namespace),
		phraseFilter(index, "hostname", validatorHostname),
	}, ",")

	return fmt.Sprintf("%s/_dashboards/app/discover#/?_g=(filters:!(),%s)&_a=(columns:!(_source),filters:!(%s),index:'%s',interval:auto,query:(language:kuery,query:''),sort:!())",
		base, timeFilter, filters, index)
}
