package helpdesk

import (
	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk"
)

func (p *Plugin) SetTestClient(client *helpdesk.Client, params Params) {
	p.client = client
	p.params = params
}

func (p *Plugin) Client() *helpdesk.Client {
	return p.client
}
