package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) CreateDepartment(ctx context.Context, dept Department) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO departments (id, name, description, head_id) VALUES ($1, $2, $3, $4)
	`, dept.ID, dept.Name, dept.Description, dept.HeadID)
	return classify("insert department", err)
}

func (s *PostgresStore) UpdateDepartment(ctx context.Context, dept Department) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE departments SET name=$2, description=$3, head_id=$4, updated_at=NOW() WHERE id=$1
	`, dept.ID, dept.Name, dept.Description, dept.HeadID)
	return requireRow("update department", result, err)
}

func (s *PostgresStore) DeleteDepartment(ctx context.Context, deptID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM departments WHERE id=$1`, deptID)
	return affected("delete department", result, err)
}

const departmentSelect = `
	SELECT d.id, d.name, d.description, d.head_id, d.created_at, d.updated_at,
		(SELECT COUNT(*) FROM users u WHERE u.department_id = d.id)
	FROM departments d`

func scanDepartment(row rowScanner) (Department, error) {
	var dept Department
	err := row.Scan(&dept.ID, &dept.Name, &dept.Description, &dept.HeadID, &dept.CreatedAt, &dept.UpdatedAt, &dept.MemberCount)
	return dept, err
}

func (s *PostgresStore) GetDepartment(ctx context.Context, deptID string) (Department, error) {
	dept, err := scanDepartment(s.db.QueryRowContext(ctx, departmentSelect+` WHERE d.id=$1`, deptID))
	if err != nil {
		return Department{}, classify("lookup department", err)
	}
	return dept, nil
}

func (s *PostgresStore) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := s.db.QueryContext(ctx, departmentSelect+` ORDER BY d.name`)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	defer rows.Close()

	depts := make([]Department, 0)
	for rows.Next() {
		dept, err := scanDepartment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan department: %w", err)
		}
		depts = append(depts, dept)
	}
	return depts, rows.Err()
}

func (s *PostgresStore) CreateTeam(ctx context.Context, team Team) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO teams (id, name, description, department_id, lead_id) VALUES ($1, $2, $3, $4, $5)
	`, team.ID, team.Name, team.Description, team.DepartmentID, team.LeadID)
	return classify("insert team", err)
}

func (s *PostgresStore) UpdateTeam(ctx context.Context, team Team) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE teams SET name=$2, description=$3, department_id=$4, lead_id=$5, updated_at=NOW() WHERE id=$1
	`, team.ID, team.Name, team.Description, team.DepartmentID, team.LeadID)
	return requireRow("update team", result, err)
}

func (s *PostgresStore) DeleteTeam(ctx context.Context, teamID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM teams WHERE id=$1`, teamID)
	return affected("delete team", result, err)
}

const teamSelect = `
	SELECT t.id, t.name, t.description, t.department_id, t.lead_id, t.created_at, t.updated_at,
		(SELECT COUNT(*) FROM team_members m WHERE m.team_id = t.id)
	FROM teams t`

func scanTeam(row rowScanner) (Team, error) {
	var team Team
	err := row.Scan(&team.ID, &team.Name, &team.Description, &team.DepartmentID, &team.LeadID, &team.CreatedAt, &team.UpdatedAt, &team.MemberCount)
	return team, err
}

func (s *PostgresStore) GetTeam(ctx context.Context, teamID string) (Team, error) {
	team, err := scanTeam(s.db.QueryRowContext(ctx, teamSelect+` WHERE t.id=$1`, teamID))
	if err != nil {
		return Team{}, classify("lookup team", err)
	}
	return team, nil
}

func (s *PostgresStore) ListTeams(ctx context.Context, filter TeamFilter) ([]Team, error) {
	var w where
	if filter.MemberID != "" {
		w.add("t.id IN (SELECT team_id FROM team_members WHERE user_id=?)", filter.MemberID)
	}
	rows, err := s.db.QueryContext(ctx, teamSelect+w.clause()+` ORDER BY t.name`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	teams := make([]Team, 0)
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, team)
	}
	return teams, rows.Err()
}

// AddTeamMember reports false when the user was already a member.
func (s *PostgresStore) AddTeamMember(ctx context.Context, teamID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO team_members (team_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING
	`, teamID, userID)
	return affected("add team member", result, err)
}

func (s *PostgresStore) RemoveTeamMember(ctx context.Context, teamID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM team_members WHERE team_id=$1 AND user_id=$2`, teamID, userID)
	return affected("remove team member", result, err)
}
