package helpdesk

// Requests returns every operation the client issues, for servers that answer
// them through a Mock.
func Requests() []*Request {
	return []*Request{
		createUser, getUser, updateUser, destroyUser, getUsers, getOrganizationUsers,
		searchUsers, getCurrentUser,
		createOrganization, getOrganization, updateOrganization, destroyOrganization,
		getOrganizations,
		createTicket, getTicket, updateTicket, destroyTicket, getTickets,
		getOrganizationTickets, getRequestedTickets,
		getTicketComments, getTicketAudits, getTicketAudit,
		createGroup, getGroup, updateGroup, destroyGroup, getGroups,
		createMembership, getMembership, destroyMembership, getUserMemberships,
		getOrganizationMemberships,
		createGroupMembership, getGroupMembership, destroyGroupMembership,
		getGroupMemberships, getUserGroupMemberships, getMembershipsOfGroup,
		createTicketField, getTicketField, updateTicketField, destroyTicketField,
		getTicketFields,
		createCategory, getCategory, updateCategory, destroyCategory, getCategories,
	}
}
