package helpdesk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/hashicorp/go-hclog"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/plugin-sdk/pkg/hclog2slog"
	"github.com/samber/oops"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	idmangv1 "github.com/openkcm/plugin-sdk/proto/plugin/identity_management/v1"
	configv1 "github.com/openkcm/plugin-sdk/proto/service/common/config/v1"

	"github.com/openkcm/helpdesk-plugins/pkg/config"
	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk"
	"github.com/openkcm/helpdesk-plugins/pkg/utils/errs"
)

var (
	ErrID               = oops.In("Helpdesk Plugin")
	ErrNoClient         = errors.New("no helpdesk client exists")
	ErrGetAllGroups     = errors.New("failed to get groups")
	ErrGetGroupsForUser = errors.New("failed to get groups for user")
	ErrGetUsersForGroup = errors.New("failed to get users for group")
	ErrNoID             = errors.New("no filter id provided")
)

// defaultAttribute names groups and users by their "name" attribute.
const defaultAttribute = "name"

type Params struct {
	GroupAttribute string
	UserAttribute  string
}

// Plugin answers identity-management calls from helpdesk groups: group
// members are the users of its group memberships.
type Plugin struct {
	idmangv1.UnsafeIdentityManagementServiceServer
	configv1.UnsafeConfigServer

	logger    hclog.Logger
	client    *helpdesk.Client
	params    Params
	buildInfo string
}

var (
	_ idmangv1.IdentityManagementServiceServer = (*Plugin)(nil)
	_ configv1.ConfigServer                    = (*Plugin)(nil)
)

func NewPlugin(buildInfo string) *Plugin {
	return &Plugin{
		logger:    hclog.NewNullLogger(),
		buildInfo: buildInfo,
	}
}

func (p *Plugin) SetLogger(logger hclog.Logger) {
	p.logger = logger
	slog.SetDefault(hclog2slog.New(logger))
}

func (p *Plugin) Configure(
	_ context.Context,
	req *configv1.ConfigureRequest,
) (*configv1.ConfigureResponse, error) {
	slog.Info("Configuring plugin", "buildInfo", p.buildInfo)

	cfg, err := config.Load([]byte(req.GetYamlConfiguration()))
	if err != nil {
		return nil, ErrID.Wrapf(err, "Failed to get yaml Configuration")
	}

	groupAttr, err := loadAttribute(cfg.Params.GroupAttribute)
	if err != nil {
		return nil, ErrID.Wrapf(err, "Failed loading group attribute")
	}

	userAttr, err := loadAttribute(cfg.Params.UserAttribute)
	if err != nil {
		return nil, ErrID.Wrapf(err, "Failed loading user attribute")
	}

	client, err := helpdesk.NewFromConfig(cfg, p.logger.Named("helpdesk"))
	if err != nil {
		return nil, ErrID.Wrapf(err, "Failed creating helpdesk client")
	}

	p.params = Params{GroupAttribute: groupAttr, UserAttribute: userAttr}
	p.client = client

	return &configv1.ConfigureResponse{}, nil
}

func (p *Plugin) GetAllGroups(
	ctx context.Context,
	_ *idmangv1.GetAllGroupsRequest,
) (*idmangv1.GetAllGroupsResponse, error) {
	if p.client == nil {
		return nil, ErrNoClient
	}

	groups, err := p.client.Groups().Collect(ctx)
	if err != nil {
		return nil, errs.Wrap(ErrGetAllGroups, err)
	}

	responseGroups := make([]*idmangv1.Group, len(groups))

	for i, group := range groups {
		responseGroups[i] = p.toGroup(group)
	}

	return &idmangv1.GetAllGroupsResponse{Groups: responseGroups}, nil
}

func (p *Plugin) GetUsersForGroup(
	ctx context.Context,
	request *idmangv1.GetUsersForGroupRequest,
) (*idmangv1.GetUsersForGroupResponse, error) {
	if p.client == nil {
		return nil, ErrNoClient
	}

	if request.GetGroupId() == "" {
		return nil, errs.Wrap(ErrGetUsersForGroup, ErrNoID)
	}

	group, err := p.findGroup(ctx, request.GetGroupId())
	if err != nil {
		return nil, errs.Wrap(ErrGetUsersForGroup, err)
	}

	if group == nil {
		return nil, status.Errorf(codes.NotFound, "group %q not found", request.GetGroupId())
	}

	memberships, err := group.Memberships().Collect(ctx)
	if err != nil {
		return nil, errs.Wrap(ErrGetUsersForGroup, err)
	}

	responseUsers := make([]*idmangv1.User, 0, len(memberships))

	for _, membership := range memberships {
		user, err := membership.User().Resolve(ctx)
		if err != nil {
			return nil, errs.Wrap(ErrGetUsersForGroup, err)
		}

		if user == nil {
			continue
		}

		responseUsers = append(responseUsers, p.toUser(user))
	}

	return &idmangv1.GetUsersForGroupResponse{Users: responseUsers}, nil
}

func (p *Plugin) GetGroupsForUser(
	ctx context.Context,
	request *idmangv1.GetGroupsForUserRequest,
) (*idmangv1.GetGroupsForUserResponse, error) {
	if p.client == nil {
		return nil, ErrNoClient
	}

	if request.GetUserId() == "" {
		return nil, errs.Wrap(ErrGetGroupsForUser, ErrNoID)
	}

	user, err := p.findUser(ctx, request.GetUserId())
	if err != nil {
		return nil, errs.Wrap(ErrGetGroupsForUser, err)
	}

	if user == nil {
		return nil, status.Errorf(codes.NotFound, "user %q not found", request.GetUserId())
	}

	memberships, err := user.GroupMemberships().Collect(ctx)
	if err != nil {
		return nil, errs.Wrap(ErrGetGroupsForUser, err)
	}

	responseGroups := make([]*idmangv1.Group, 0, len(memberships))

	for _, membership := range memberships {
		group, err := membership.Group().Resolve(ctx)
		if err != nil {
			return nil, errs.Wrap(ErrGetGroupsForUser, err)
		}

		if group == nil || group.Deleted() {
			continue
		}

		responseGroups = append(responseGroups, p.toGroup(group))
	}

	return &idmangv1.GetGroupsForUserResponse{Groups: responseGroups}, nil
}

// findGroup looks a group up by identity when the group attribute is "id",
// and otherwise by comparing the attribute over all listed groups.
func (p *Plugin) findGroup(ctx context.Context, value string) (*helpdesk.Group, error) {
	attribute := attributeOrDefault(p.params.GroupAttribute)
	if attribute == "id" {
		return p.client.Groups().Get(ctx, value)
	}

	for group, err := range p.client.Groups().Iter(ctx) {
		if err != nil {
			return nil, err
		}

		if attributeValue(group.Model, attribute) == value {
			return group, nil
		}
	}

	return nil, nil
}

// findUser looks a user up by identity, or searches on the user attribute.
func (p *Plugin) findUser(ctx context.Context, value string) (*helpdesk.User, error) {
	attribute := attributeOrDefault(p.params.UserAttribute)
	if attribute == "id" {
		return p.client.Users().Get(ctx, value)
	}

	users, err := p.client.SearchUsers(ctx, helpdesk.SearchFor(map[string]any{attribute: value}))
	if err != nil {
		return nil, err
	}

	// search matches case-insensitively, so the exact match may sit on a
	// later page
	for user, err := range users.Iter(ctx) {
		if err != nil {
			return nil, err
		}

		if attributeValue(user.Model, attribute) == value {
			return user, nil
		}
	}

	return nil, nil
}

func (p *Plugin) toGroup(group *helpdesk.Group) *idmangv1.Group {
	return &idmangv1.Group{
		Id:   identity(group.ID()),
		Name: attributeValue(group.Model, attributeOrDefault(p.params.GroupAttribute)),
	}
}

func (p *Plugin) toUser(user *helpdesk.User) *idmangv1.User {
	return &idmangv1.User{
		Id:   identity(user.ID()),
		Name: attributeValue(user.Model, attributeOrDefault(p.params.UserAttribute)),
	}
}

func identity(id int64, ok bool) string {
	if !ok {
		return ""
	}

	return strconv.FormatInt(id, 10)
}

func attributeOrDefault(attribute string) string {
	if attribute == "" {
		return defaultAttribute
	}

	return attribute
}

// attributeValue renders any attribute, the identity included, as a string.
func attributeValue(m *helpdesk.Model, attribute string) string {
	v := m.Get(attribute)
	if v == nil {
		return ""
	}

	return fmt.Sprint(v)
}

func loadAttribute(ref commoncfg.SourceRef) (string, error) {
	if !config.IsSet(ref) {
		return "", nil
	}

	return config.LoadString(ref)
}
