package dto

// CourseListQuery binds catalog query parameters.
type CourseListQuery struct {
	Search string `form:"search"`
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
}

// UserListQuery binds admin user listing parameters.
type UserListQuery struct {
	Role      string `form:"role"`
	Active    string `form:"active"`
	Search    string `form:"search"`
	Page      int    `form:"page"`
	Limit     int    `form:"limit"`
	SortBy    string `form:"sortBy"`
	SortOrder string `form:"sortOrder"`
}
