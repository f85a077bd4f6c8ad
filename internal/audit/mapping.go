package audit

import "strings"

// ActionResource holds action and resource derived from a route.
type ActionResource struct {
	Action   string
	Resource string
}

// ParseRoute returns action and resource for either a gRPC full method
// (/tenantauthz.project.v1.ProjectService/ListProjects) or an HTTP route template
// (GET /orgs/{orgId}/projects/{projectId}).
func ParseRoute(route string) ActionResource {
	if method, path, ok := strings.Cut(route, " "); ok {
		return parseHTTPRoute(method, path)
	}
	return ParseFullMethod(route)
}

// ParseFullMethod returns action and resource for a gRPC full method (e.g. /tenantauthz.project.v1.ProjectService/GetProject).
// Action is a verb: get, list, create, update, delete, or a lowercase method name for others.
// Resource is derived from the service name (e.g. ProjectService -> project).
func ParseFullMethod(fullMethod string) ActionResource {
	slash := strings.LastIndex(fullMethod, "/")
	if slash < 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	method := fullMethod[slash+1:]
	beforeSlash := fullMethod[:slash]
	dot := strings.LastIndex(beforeSlash, ".")
	if dot < 0 {
		return ActionResource{Action: strings.ToLower(method), Resource: "unknown"}
	}
	return ActionResource{Action: methodToAction(method), Resource: serviceToResource(beforeSlash[dot+1:])}
}

func serviceToResource(serviceName string) string {
	s := strings.TrimSuffix(serviceName, "Service")
	if s == "" {
		return "unknown"
	}
	return strings.ToLower(s[0:1]) + s[1:]
}

func methodToAction(method string) string {
	switch {
	case strings.HasPrefix(method, "Get") && method != "Get":
		return "get"
	case strings.HasPrefix(method, "List"):
		return "list"
	case strings.HasPrefix(method, "Create"):
		return "create"
	case strings.HasPrefix(method, "Update"):
		return "update"
	case strings.HasPrefix(method, "Delete"):
		return "delete"
	case strings.HasPrefix(method, "Check"):
		return "check"
	default:
		return strings.ToLower(method)
	}
}

// parseHTTPRoute maps the verb and the last literal path segment, singularised.
// A trailing path variable means the route addresses one item.
func parseHTTPRoute(method, path string) ActionResource {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	resource := "unknown"
	item := false
	for i := len(segments) - 1; i >= 0; i-- {
		seg := segments[i]
		if seg == "" {
			continue
		}
		if strings.HasPrefix(seg, "{") {
			if i == len(segments)-1 {
				item = true
			}
			continue
		}
		resource = strings.TrimSuffix(strings.ToLower(seg), "s")
		break
	}

	var action string
	switch strings.ToUpper(method) {
	case "GET", "HEAD":
		action = "list"
		if item {
			action = "get"
		}
	case "POST":
		action = "create"
	case "PUT", "PATCH":
		action = "update"
	case "DELETE":
		action = "delete"
	default:
		action = strings.ToLower(method)
	}
	return ActionResource{Action: action, Resource: resource}
}
